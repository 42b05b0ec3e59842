package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/the-deep/deeptree/internal/codec"
	"github.com/the-deep/deeptree/internal/parser"
	"github.com/the-deep/deeptree/internal/pipeline"
	"github.com/the-deep/deeptree/internal/tree"
)

type rootOptions struct {
	verbose bool
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "deeptree",
		Short:         "Inspect, search and convert organigram trees",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newShowCmd(opts),
		newFlattenCmd(opts),
		newValidateCmd(opts),
		newConvertCmd(opts),
		newSelectedCmd(opts),
	)
	return cmd
}

// loadForest reads a tree with readForest and rejects it unless it passes
// tree.Validate.
func loadForest(path string, log *slog.Logger) (tree.Forest, error) {
	f, err := readForest(path, log)
	if err != nil {
		return nil, err
	}
	if err := tree.Validate(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// readForest reads a serialized tree (JSON or YAML, one root or a list) or
// parses any other supported document into a single-root forest. The result
// is not validated.
func readForest(path string, log *slog.Logger) (tree.Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format, ok := codec.FormatFor(path); ok {
		log.Debug("decoding", "file", path, "format", format)
		return codec.DecodeForest(bytes.NewReader(data), format)
	}
	if !parser.IsSupportedExtension(path) {
		return nil, fmt.Errorf("%s: unsupported file type", path)
	}
	log.Debug("parsing document", "file", path, "bytes", len(data))
	root, err := pipeline.ParseFile(path, data, parser.Options{FallbackPdftotext: true})
	if err != nil {
		return nil, err
	}
	return tree.Forest{root}, nil
}

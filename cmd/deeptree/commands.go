package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltree "github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"
	"github.com/the-deep/deeptree/internal/codec"
	"github.com/the-deep/deeptree/internal/search"
	"github.com/the-deep/deeptree/internal/tree"
)

var (
	keyStyle    = lipgloss.NewStyle().Faint(true)
	markerStyle = map[tree.State]lipgloss.Style{
		tree.Selected:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		tree.Indeterminate: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		tree.Unselected:    lipgloss.NewStyle(),
	}
)

func marker(s tree.State) string {
	switch s {
	case tree.Selected:
		return "[x]"
	case tree.Indeterminate:
		return "[-]"
	}
	return "[ ]"
}

func nodeLine(n *tree.Node, withKeys bool) string {
	st := tree.StateOf(n)
	line := markerStyle[st].Render(marker(st)) + " " + tree.DisplayLabel(n.Label)
	if withKeys {
		line += " " + keyStyle.Render("("+n.Key+")")
	}
	return line
}

func render(n *tree.Node, withKeys bool) *ltree.Tree {
	t := ltree.Root(nodeLine(n, withKeys))
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		if c.IsLeaf() {
			t.Child(nodeLine(c, withKeys))
			continue
		}
		t.Child(render(c, withKeys))
	}
	return t
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var withKeys bool
	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Render a tree with its selection state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadForest(args[0], opts.log)
			if err != nil {
				return err
			}
			for _, root := range f {
				if root == nil {
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), render(root, withKeys).Enumerator(ltree.RoundedEnumerator).String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withKeys, "keys", false, "show node keys")
	return cmd
}

func newFlattenCmd(opts *rootOptions) *cobra.Command {
	var query string
	var limit int
	cmd := &cobra.Command{
		Use:   "flatten FILE",
		Short: "Print one qualified option per node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadForest(args[0], opts.log)
			if err != nil {
				return err
			}
			options := tree.Options(f)
			for i := range options {
				options[i].Label = tree.DisplayLabel(options[i].Label)
			}
			if query != "" {
				options = search.Rank(query, options)
			}
			if limit > 0 && len(options) > limit {
				options = options[:limit]
			}
			for _, o := range options {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", o.Key, o.Label)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "search", "s", "", "fuzzy filter on qualified labels")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most n options")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check keys are unique and the structure is a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadForest(args[0], opts.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d roots, %d nodes, depth %d\n", len(f), tree.Count(f), tree.Depth(f))
			return nil
		},
	}
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var format string
	var fillKeys bool
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Re-encode a tree or document as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := codec.ParseFormat(format)
			if err != nil {
				return err
			}
			f, err := readForest(args[0], opts.log)
			if err != nil {
				return err
			}
			if fillKeys {
				for i, root := range f {
					f[i] = codec.FillKeys(root)
				}
			}
			if err := tree.Validate(f); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if len(f) == 1 {
				return codec.Encode(cmd.OutOrStdout(), f[0], out)
			}
			return codec.Encode(cmd.OutOrStdout(), f, out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&fillKeys, "fill-keys", false, "assign fresh keys to nodes without one")
	return cmd
}

func newSelectedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selected FILE",
		Short: "Print the keys of selected nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadForest(args[0], opts.log)
			if err != nil {
				return err
			}
			keys := tree.SelectedKeys(f)
			if len(keys) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(keys, "\n"))
			}
			return nil
		},
	}
}

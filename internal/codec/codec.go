// Package codec reads and writes trees as JSON or YAML.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/the-deep/deeptree/internal/tree"
	"gopkg.in/yaml.v3"
)

// Format names a serialization.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// FormatFor picks a format from a file extension.
func FormatFor(filename string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return JSON, true
	case ".yaml", ".yml":
		return YAML, true
	}
	return "", false
}

// DecodeForest reads either a single node or a list of nodes.
func DecodeForest(r io.Reader, format Format) (tree.Forest, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", format, err)
	}
	src = bytes.TrimSpace(src)
	if len(src) == 0 {
		return nil, fmt.Errorf("decode %s: empty input", format)
	}

	var forest tree.Forest
	switch format {
	case JSON:
		if src[0] == '[' {
			err = json.Unmarshal(src, &forest)
		} else {
			var n tree.Node
			err = json.Unmarshal(src, &n)
			forest = tree.Forest{&n}
		}
	case YAML:
		var probe yaml.Node
		if err = yaml.Unmarshal(src, &probe); err != nil {
			break
		}
		if len(probe.Content) > 0 && probe.Content[0].Kind == yaml.SequenceNode {
			err = probe.Decode(&forest)
		} else {
			var n tree.Node
			err = probe.Decode(&n)
			forest = tree.Forest{&n}
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return forest, nil
}

// DecodeNode reads a single rooted tree.
func DecodeNode(r io.Reader, format Format) (*tree.Node, error) {
	forest, err := DecodeForest(r, format)
	if err != nil {
		return nil, err
	}
	if len(forest) != 1 {
		return nil, fmt.Errorf("decode %s: expected one root, got %d", format, len(forest))
	}
	return forest[0], nil
}

// Encode writes v (a node, forest, or any value) in the given format.
func Encode(w io.Writer, v any, format Format) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

// FillKeys returns a copy of root in which every node without a key gets a
// fresh one and children without an order are numbered by position.
func FillKeys(root *tree.Node) *tree.Node {
	if root == nil {
		return nil
	}
	cp := *root
	if cp.Key == "" {
		cp.Key = tree.NewKey()
	}
	if root.Children != nil {
		cp.Children = make([]*tree.Node, len(root.Children))
		for i, c := range root.Children {
			if c == nil {
				continue
			}
			filled := FillKeys(c)
			if filled.Order == 0 {
				filled.Order = i + 1
			}
			cp.Children[i] = filled
		}
	}
	return &cp
}

package parser

import (
	"fmt"
	"io"

	"github.com/the-deep/deeptree/internal/codec"
	"github.com/the-deep/deeptree/internal/tree"
)

// CodecParser reads an already serialized tree (.json, .yaml, .yml). Nodes
// without keys are given fresh ones.
type CodecParser struct{}

func (p *CodecParser) Parse(r io.Reader, filename string) (*tree.Node, error) {
	format, ok := codec.FormatFor(filename)
	if !ok {
		return nil, fmt.Errorf("unsupported file extension: %s", filename)
	}
	root, err := codec.DecodeNode(r, format)
	if err != nil {
		return nil, err
	}
	root = codec.FillKeys(root)
	if root.Label == "" {
		root.Label = titleFor(filename)
	}
	return root, nil
}

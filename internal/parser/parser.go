package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/the-deep/deeptree/internal/tree"
)

// Parser converts raw document bytes into a rooted tree. The root is labelled
// with the document title; every node gets a fresh key and a 1-based order.
type Parser interface {
	Parse(r io.Reader, filename string) (*tree.Node, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
}

// Options tune parser behaviour.
type Options struct {
	FallbackPdftotext bool
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	return ForFileWith(filename, Options{})
}

// ForFileWith is ForFile with explicit options.
func ForFileWith(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.FallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".json", ".yaml", ".yml":
		return &CodecParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// titleFor strips the directory and extension from a filename.
func titleFor(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type stackEntry struct {
	node  *tree.Node
	level int
}

// outline builds a tree from a stream of leveled headings. Level 0 is the
// root; a heading nests under the nearest open heading with a lower level.
type outline struct {
	root  *tree.Node
	stack []stackEntry
}

func newOutline(title string) *outline {
	root := &tree.Node{Key: tree.NewKey(), Label: title}
	return &outline{root: root, stack: []stackEntry{{node: root, level: 0}}}
}

// push adds a heading at level and makes it the current node.
func (o *outline) push(level int, label string) *tree.Node {
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	n := appendChild(o.stack[len(o.stack)-1].node, label)
	o.stack = append(o.stack, stackEntry{node: n, level: level})
	return n
}

// current returns the innermost open heading.
func (o *outline) current() *tree.Node {
	return o.stack[len(o.stack)-1].node
}

// describe sets the tooltip of the current heading from the first body text
// that follows it.
func (o *outline) describe(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	top := o.current()
	if top.Tooltip == "" && top != o.root {
		top.Tooltip = CleanTooltip(firstLine(text))
	}
}

// appendChild attaches a freshly keyed node to a parent under construction.
func appendChild(parent *tree.Node, label string) *tree.Node {
	n := &tree.Node{Key: tree.NewKey(), Label: CleanLabel(label), Order: len(parent.Children) + 1}
	parent.Children = append(parent.Children, n)
	return n
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

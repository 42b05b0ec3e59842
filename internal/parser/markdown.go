package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/the-deep/deeptree/internal/tree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Headings form the
// hierarchy; bullet and numbered lists nest under the heading they follow.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*tree.Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	o := newOutline(titleFor(filename))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			o.push(node.Level, extractText(node, src))
		case *ast.List:
			addListItems(o.current(), node, src)
		default:
			o.describe(extractText(n, src))
		}
	}
	return o.root, nil
}

// addListItems appends one child per list item; nested lists recurse.
func addListItems(parent *tree.Node, list *ast.List, src []byte) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var label string
		var nested []*ast.List
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if l, ok := c.(*ast.List); ok {
				nested = append(nested, l)
				continue
			}
			if label == "" {
				label = extractText(c, src)
			}
		}
		n := appendChild(parent, label)
		for _, l := range nested {
			addListItems(n, l, src)
		}
	}
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.ChildCount() == 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

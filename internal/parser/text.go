package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/the-deep/deeptree/internal/tree"
)

// TextParser handles plain-text outlines: each non-blank line is a node and
// its indentation (a tab or two spaces per level) sets the depth. Leading
// "- ", "* " and "+ " bullets are dropped.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*tree.Node, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	o := newOutline(titleFor(filename))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		o.push(indentLevel(line)+1, stripBullet(strings.TrimSpace(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return o.root, nil
}

func indentLevel(line string) int {
	level, spaces := 0, 0
	for _, r := range line {
		switch r {
		case '\t':
			level++
			spaces = 0
		case ' ':
			spaces++
			if spaces == 2 {
				level++
				spaces = 0
			}
		default:
			return level
		}
	}
	return level
}

func stripBullet(s string) string {
	for _, b := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(s, b) {
			return strings.TrimSpace(s[len(b):])
		}
	}
	return s
}

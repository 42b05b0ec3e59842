package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/the-deep/deeptree/internal/tree"
)

// PDFParser builds the tree from the document outline (bookmarks). Without an
// outline each page becomes a child labelled with its first line of text,
// falling back to pdftotext when enabled and the Go reader fails.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*tree.Node, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "deeptree-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	root := &tree.Node{Key: tree.NewKey(), Label: titleFor(filename)}

	pages, err := readPDF(tmpPath, root)
	if err != nil && p.FallbackPdftotext {
		var text string
		text, err = extractPdftotext(tmpPath)
		pages = strings.Split(text, "\f")
	}
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if len(root.Children) > 0 {
		return root, nil
	}

	for i, page := range pages {
		line := firstLine(strings.TrimSpace(page))
		if line == "" {
			continue
		}
		n := appendChild(root, line)
		n.Tooltip = fmt.Sprintf("Page %d", i+1)
	}
	return root, nil
}

// readPDF copies the outline under root and returns per-page plain text for
// documents without one.
func readPDF(path string, root *tree.Node) ([]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, entry := range reader.Outline().Child {
		addOutline(root, entry)
	}
	if len(root.Children) > 0 {
		return nil, nil
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func addOutline(parent *tree.Node, entry pdflib.Outline) {
	n := appendChild(parent, strings.TrimSpace(entry.Title))
	for _, c := range entry.Child {
		addOutline(n, c)
	}
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

package parser

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/the-deep/deeptree/internal/tree"
)

// CSVParser handles parent-linked rows: key,parent_key,label[,tooltip][,order].
// A header row starting with "key" is skipped. Rows whose parent is empty or
// unknown hang off the document root. Siblings are sorted by order, then
// label, and renumbered from 1.
type CSVParser struct{}

type csvRow struct {
	key, parent, label, tooltip string
	order                       int
	line                        int
}

func (p *CSVParser) Parse(r io.Reader, filename string) (*tree.Node, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 && strings.EqualFold(strings.TrimSpace(records[0][0]), "key") {
		records = records[1:]
	}

	rows := make([]csvRow, 0, len(records))
	byKey := make(map[string]bool, len(records))
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("parse csv: line %d: want at least 3 columns, got %d", i+1, len(rec))
		}
		row := csvRow{
			key:    strings.TrimSpace(rec[0]),
			parent: strings.TrimSpace(rec[1]),
			label:  strings.TrimSpace(rec[2]),
			line:   i + 1,
		}
		if row.key == "" {
			row.key = tree.NewKey()
		}
		if byKey[row.key] {
			return nil, fmt.Errorf("parse csv: line %d: duplicate key %q", row.line, row.key)
		}
		byKey[row.key] = true
		if len(rec) > 3 {
			row.tooltip = strings.TrimSpace(rec[3])
		}
		if len(rec) > 4 && strings.TrimSpace(rec[4]) != "" {
			row.order, err = strconv.Atoi(strings.TrimSpace(rec[4]))
			if err != nil {
				return nil, fmt.Errorf("parse csv: line %d: order: %w", row.line, err)
			}
		}
		rows = append(rows, row)
	}

	children := make(map[string][]csvRow)
	for _, row := range rows {
		parent := row.parent
		if !byKey[parent] || parent == row.key {
			parent = ""
		}
		children[parent] = append(children[parent], row)
	}
	for _, list := range children {
		slices.SortStableFunc(list, func(a, b csvRow) int {
			return cmp.Or(cmp.Compare(a.order, b.order), strings.Compare(a.label, b.label))
		})
	}

	root := &tree.Node{Key: tree.NewKey(), Label: titleFor(filename)}
	built := 0
	var attach func(parent *tree.Node, key string)
	attach = func(parent *tree.Node, key string) {
		for _, row := range children[key] {
			n := appendChild(parent, row.label)
			n.Key = row.key
			n.Tooltip = CleanTooltip(row.tooltip)
			built++
			attach(n, row.key)
		}
	}
	attach(root, "")

	if built != len(rows) {
		return nil, fmt.Errorf("parse csv: %d rows are part of a parent cycle", len(rows)-built)
	}
	return root, nil
}

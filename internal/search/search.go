// Package search ranks flattened tree options against a free-text query.
package search

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/the-deep/deeptree/internal/tree"
)

// Rank keeps the options whose label fuzzily contains q, ignoring case and
// diacritics, closest match first. Ties keep their input order.
func Rank(q string, opts []tree.Option) []tree.Option {
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	ranks := fuzzy.RankFindNormalizedFold(q, labels)
	sort.Stable(ranks)
	out := make([]tree.Option, len(ranks))
	for i, rk := range ranks {
		out[i] = opts[rk.OriginalIndex]
	}
	return out
}

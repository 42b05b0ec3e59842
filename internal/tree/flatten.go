package tree

import (
	"iter"
	"slices"
)

// Separator joins ancestor labels in a qualified label.
const Separator = "/"

// UnnamedLabel is shown in place of an empty label.
const UnnamedLabel = "Unnamed"

// Option is the flat projection of a node: every field except its children,
// with Label replaced by the ancestry-qualified label.
type Option struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Tooltip  string `json:"tooltip,omitempty"`
	Order    int    `json:"order,omitempty"`
	Selected bool   `json:"selected,omitempty"`
	Depth    int    `json:"depth"`
}

// Flatten yields one Option per node of the subtree rooted at root, in
// pre-order: a parent precedes its whole subtree and siblings keep their input
// order. Callers normally pass an empty prefix. The sequence is computed fresh
// on every iteration.
func Flatten(root *Node, prefix string) iter.Seq[Option] {
	return func(yield func(Option) bool) {
		if root == nil {
			return
		}
		flatten(root, prefix, 0, yield)
	}
}

// FlattenForest flattens every root in order.
func FlattenForest(f Forest) iter.Seq[Option] {
	return func(yield func(Option) bool) {
		for _, root := range f {
			if root == nil {
				continue
			}
			if !flatten(root, "", 0, yield) {
				return
			}
		}
	}
}

// Options collects FlattenForest into a slice.
func Options(f Forest) []Option {
	return slices.Collect(FlattenForest(f))
}

func flatten(n *Node, prefix string, depth int, yield func(Option) bool) bool {
	label := qualify(prefix, n.Label)
	opt := Option{
		Key:      n.Key,
		Label:    label,
		Tooltip:  n.Tooltip,
		Order:    n.Order,
		Selected: n.Selected,
		Depth:    depth,
	}
	if !yield(opt) {
		return false
	}
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		if !flatten(c, label, depth+1, yield) {
			return false
		}
	}
	return true
}

func qualify(prefix, label string) string {
	if prefix == "" {
		return label
	}
	return prefix + Separator + label
}

// DisplayLabel returns label, or UnnamedLabel when it is empty.
func DisplayLabel(label string) string {
	if label == "" {
		return UnnamedLabel
	}
	return label
}

// Package tree implements the ordered, selectable tree model behind organigram
// widgets and nested checkbox selections.
//
// Values are treated as immutable: every exported operation returns a new
// value and never edits its input. Nodes on the path from the root to an edit
// are freshly allocated; untouched sibling subtrees are shared between the old
// and the new value. When an operation fails it returns its input unchanged
// together with an error wrapping ErrNotFound or ErrInvalidArgument.
package tree

import (
	"fmt"
	"iter"
)

// Node is one node of a rooted, ordered forest.
type Node struct {
	Key      string  `json:"key" yaml:"key"`
	Label    string  `json:"label,omitempty" yaml:"label,omitempty"`
	Tooltip  string  `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Order    int     `json:"order,omitempty" yaml:"order,omitempty"`
	Selected bool    `json:"selected,omitempty" yaml:"selected,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// Forest is an ordered collection of independent roots.
type Forest []*Node

// KeyOf returns the node's key.
func KeyOf(n *Node) string {
	if n == nil {
		return ""
	}
	return n.Key
}

// ChildrenOf returns the node's children, empty for a leaf.
func ChildrenOf(n *Node) []*Node {
	if n == nil {
		return nil
	}
	return n.Children
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

// shallow copies n and its child slice but shares the children themselves.
func (n *Node) shallow() *Node {
	cp := *n
	if n.Children != nil {
		cp.Children = append([]*Node(nil), n.Children...)
	}
	return &cp
}

// Walk yields every node of the forest in pre-order together with its depth
// (0 for roots).
func Walk(f Forest) iter.Seq2[*Node, int] {
	return func(yield func(*Node, int) bool) {
		for _, root := range f {
			if !walk(root, 0, yield) {
				return
			}
		}
	}
}

func walk(n *Node, depth int, yield func(*Node, int) bool) bool {
	if n == nil {
		return true
	}
	if !yield(n, depth) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, depth+1, yield) {
			return false
		}
	}
	return true
}

// Count returns the total number of nodes in the forest.
func Count(f Forest) int {
	n := 0
	for range Walk(f) {
		n++
	}
	return n
}

// Depth returns the number of levels in the forest; 0 when empty.
func Depth(f Forest) int {
	deepest := 0
	for _, d := range Walk(f) {
		deepest = max(deepest, d+1)
	}
	return deepest
}

// Keys returns every key in pre-order.
func Keys(f Forest) []string {
	var keys []string
	for n := range Walk(f) {
		keys = append(keys, n.Key)
	}
	return keys
}

// Find returns the node with the given key anywhere in the forest.
func Find(f Forest, key string) (*Node, bool) {
	for n := range Walk(f) {
		if n.Key == key {
			return n, true
		}
	}
	return nil, false
}

// Validate checks the structural invariants: every key is non-empty and
// unique, and no node is reachable twice (shared subtrees or cycles).
func Validate(f Forest) error {
	seenKeys := make(map[string]bool)
	onPath := make(map[*Node]bool)
	visited := make(map[*Node]bool)

	var check func(n *Node) error
	check = func(n *Node) error {
		if n == nil {
			return &Error{Op: "validate", Err: fmt.Errorf("%w: nil node", ErrInvalidArgument)}
		}
		if onPath[n] {
			return &Error{Op: "validate", Key: n.Key, Err: fmt.Errorf("%w: cycle", ErrInvalidArgument)}
		}
		if visited[n] {
			return &Error{Op: "validate", Key: n.Key, Err: fmt.Errorf("%w: shared subtree", ErrInvalidArgument)}
		}
		if n.Key == "" {
			return &Error{Op: "validate", Err: fmt.Errorf("%w: empty key (label %q)", ErrInvalidArgument, n.Label)}
		}
		if seenKeys[n.Key] {
			return &Error{Op: "validate", Key: n.Key, Err: fmt.Errorf("%w: duplicate key", ErrInvalidArgument)}
		}
		seenKeys[n.Key] = true
		visited[n] = true
		onPath[n] = true
		for _, c := range n.Children {
			if err := check(c); err != nil {
				return err
			}
		}
		delete(onPath, n)
		return nil
	}

	for _, root := range f {
		if err := check(root); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two forests hold the same values. A nil and an empty
// children list are considered equal.
func Equal(a, b Forest) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalNode(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equalNode(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Key != b.Key || a.Label != b.Label || a.Tooltip != b.Tooltip ||
		a.Order != b.Order || a.Selected != b.Selected {
		return false
	}
	return Equal(a.Children, b.Children)
}

// indexPath returns the child indices leading from the forest's top level to
// key. The first element indexes into f itself.
func indexPath(f Forest, key string) ([]int, bool) {
	for i, n := range f {
		if n == nil {
			continue
		}
		if n.Key == key {
			return []int{i}, true
		}
		if rest, ok := indexPath(n.Children, key); ok {
			return append([]int{i}, rest...), true
		}
	}
	return nil, false
}

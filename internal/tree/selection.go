package tree

import "slices"

// State is the read-time selection state of a node. It is derived from the
// subtree and never stored.
type State int

const (
	Unselected State = iota
	Selected
	Indeterminate
)

func (s State) String() string {
	switch s {
	case Selected:
		return "selected"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unselected"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SetSubtreeSelection sets Selected to value on the top-level node targetKey
// and on every one of its descendants. Ancestors are not visited: the forest
// passed in is the level being operated on.
func SetSubtreeSelection(f Forest, targetKey string, value bool) (Forest, error) {
	i := topIndex(f, targetKey)
	if i < 0 {
		return f, notFound("set subtree selection", targetKey)
	}
	out := append(Forest(nil), f...)
	out[i] = setAll(f[i], value)
	return out, nil
}

// setAll returns a copy of the subtree with every flag set to value.
func setAll(n *Node, value bool) *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Selected = value
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = setAll(c, value)
		}
	}
	return &cp
}

// ReplaceChildrenAndRecomputeSelection replaces the children of the top-level
// node targetKey and recomputes its flag: it is selected when any of the new
// children is selected. Callers run this at every level from a changed node
// up to the root.
func ReplaceChildrenAndRecomputeSelection(f Forest, targetKey string, children []*Node) (Forest, error) {
	i := topIndex(f, targetKey)
	if i < 0 {
		return f, notFound("replace children", targetKey)
	}
	cp := *f[i]
	cp.Children = slices.Clone(children)
	cp.Selected = anySelected(children)

	out := append(Forest(nil), f...)
	out[i] = &cp
	return out, nil
}

func anySelected(nodes []*Node) bool {
	for _, n := range nodes {
		if n != nil && n.Selected {
			return true
		}
	}
	return false
}

// Toggle sets the selection of the node key, wherever it sits in the forest.
// The subtree under key is cascaded, then each ancestor level is rebuilt
// bottom-up with ReplaceChildrenAndRecomputeSelection.
func Toggle(f Forest, key string, value bool) (Forest, error) {
	path, ok := indexPath(f, key)
	if !ok {
		return f, notFound("toggle", key)
	}
	out, err := toggleAt(f, path, key, value)
	if err != nil {
		return f, err
	}
	return out, nil
}

func toggleAt(level Forest, path []int, key string, value bool) (Forest, error) {
	if len(path) == 1 {
		return SetSubtreeSelection(level, key, value)
	}
	parent := level[path[0]]
	children, err := toggleAt(parent.Children, path[1:], key, value)
	if err != nil {
		return level, err
	}
	return ReplaceChildrenAndRecomputeSelection(level, parent.Key, children)
}

// StateOf derives the tri-state of n from the leaves of its subtree: all
// selected, none selected, or some.
func StateOf(n *Node) State {
	if n == nil {
		return Unselected
	}
	if n.IsLeaf() {
		if n.Selected {
			return Selected
		}
		return Unselected
	}
	total, selected := countLeaves(n)
	switch {
	case selected == 0:
		return Unselected
	case selected == total:
		return Selected
	default:
		return Indeterminate
	}
}

func countLeaves(n *Node) (total, selected int) {
	if n.IsLeaf() {
		if n.Selected {
			return 1, 1
		}
		return 1, 0
	}
	for _, c := range n.Children {
		if c == nil {
			continue
		}
		t, s := countLeaves(c)
		total += t
		selected += s
	}
	return total, selected
}

// States returns the derived state of every node keyed by node key.
func States(f Forest) map[string]State {
	out := make(map[string]State)
	for n := range Walk(f) {
		out[n.Key] = StateOf(n)
	}
	return out
}

// SelectedKeys returns the keys of every selected node in pre-order.
func SelectedKeys(f Forest) []string {
	keys := []string{}
	for n := range Walk(f) {
		if n.Selected {
			keys = append(keys, n.Key)
		}
	}
	return keys
}

// HasSelectedDescendant reports whether any node strictly below n is selected.
func HasSelectedDescendant(n *Node) bool {
	for _, c := range ChildrenOf(n) {
		if c != nil && (c.Selected || HasSelectedDescendant(c)) {
			return true
		}
	}
	return false
}

// ApplySelection returns a copy of the forest where exactly the nodes named in
// keys are selected. Unknown keys are ignored.
func ApplySelection(f Forest, keys []string) Forest {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var apply func(n *Node) *Node
	apply = func(n *Node) *Node {
		if n == nil {
			return nil
		}
		cp := *n
		cp.Selected = want[n.Key]
		if n.Children != nil {
			cp.Children = make([]*Node, len(n.Children))
			for i, c := range n.Children {
				cp.Children[i] = apply(c)
			}
		}
		return &cp
	}
	out := make(Forest, len(f))
	for i, root := range f {
		out[i] = apply(root)
	}
	return out
}

func topIndex(f Forest, key string) int {
	for i, n := range f {
		if n != nil && n.Key == key {
			return i
		}
	}
	return -1
}

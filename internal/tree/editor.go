package tree

import (
	"slices"

	"github.com/google/uuid"
)

// MaxChildren caps the number of children a single node may hold.
const MaxChildren = 100

// NewKey returns a fresh random node key.
func NewKey() string {
	return uuid.NewString()
}

// AddChild appends a deep copy of child to the children of parentKey. The
// copy is numbered after its current siblings.
func AddChild(root *Node, parentKey string, child *Node) (*Node, error) {
	const op = "add child"
	if root == nil {
		return root, notFound(op, parentKey)
	}
	if child == nil {
		return root, invalid(op, parentKey, "nil child")
	}
	path, ok := pathOf(root, parentKey)
	if !ok {
		return root, notFound(op, parentKey)
	}
	if err := Validate(Forest{child}); err != nil {
		return root, invalid(op, child.Key, "child: %v", err)
	}

	inTree := make(map[*Node]bool)
	keys := make(map[string]bool)
	for n := range Walk(Forest{root}) {
		inTree[n] = true
		keys[n.Key] = true
	}
	for n := range Walk(Forest{child}) {
		if inTree[n] {
			return root, invalid(op, n.Key, "node already belongs to the tree")
		}
		if keys[n.Key] {
			return root, invalid(op, n.Key, "duplicate key")
		}
	}

	parent := nodeAt(root, path)
	if len(parent.Children) >= MaxChildren {
		return root, invalid(op, parentKey, "parent already has %d children", MaxChildren)
	}

	added := child.Clone()
	added.Order = len(parent.Children) + 1
	return updateAt(root, path, func(n *Node) {
		n.Children = append(n.Children, added)
	}), nil
}

// RemoveNode removes the child at index under parentKey together with its
// subtree. An empty parentKey addresses the root itself: index 0 deletes the
// whole tree and the result is a nil root with a nil error.
func RemoveNode(root *Node, parentKey string, index int) (*Node, error) {
	const op = "remove node"
	if root == nil {
		return root, notFound(op, parentKey)
	}
	if parentKey == "" {
		if index != 0 {
			return root, invalid(op, "", "root index %d out of range", index)
		}
		return nil, nil
	}
	path, ok := pathOf(root, parentKey)
	if !ok {
		return root, notFound(op, parentKey)
	}
	parent := nodeAt(root, path)
	if index < 0 || index >= len(parent.Children) {
		return root, invalid(op, parentKey, "child index %d out of range [0,%d)", index, len(parent.Children))
	}
	return updateAt(root, path, func(n *Node) {
		n.Children = slices.Delete(n.Children, index, index+1)
		if len(n.Children) == 0 {
			n.Children = nil
		}
	}), nil
}

// RenameNode sets the label of key.
func RenameNode(root *Node, key, label string) (*Node, error) {
	return setField(root, "rename node", key, func(n *Node) { n.Label = label })
}

// SetTooltip sets the tooltip of key.
func SetTooltip(root *Node, key, tooltip string) (*Node, error) {
	return setField(root, "set tooltip", key, func(n *Node) { n.Tooltip = tooltip })
}

func setField(root *Node, op, key string, fn func(*Node)) (*Node, error) {
	if root == nil {
		return root, notFound(op, key)
	}
	path, ok := pathOf(root, key)
	if !ok {
		return root, notFound(op, key)
	}
	return updateAt(root, path, fn), nil
}

// MoveChild moves the child at index from to index to within the children of
// parentKey, then renumbers the siblings 1..n.
func MoveChild(root *Node, parentKey string, from, to int) (*Node, error) {
	const op = "move child"
	if root == nil {
		return root, notFound(op, parentKey)
	}
	path, ok := pathOf(root, parentKey)
	if !ok {
		return root, notFound(op, parentKey)
	}
	n := len(nodeAt(root, path).Children)
	if from < 0 || from >= n || to < 0 || to >= n {
		return root, invalid(op, parentKey, "move %d -> %d out of range [0,%d)", from, to, n)
	}
	return updateAt(root, path, func(p *Node) {
		moved := p.Children[from]
		p.Children = slices.Delete(p.Children, from, from+1)
		p.Children = slices.Insert(p.Children, to, moved)
		for i, c := range p.Children {
			if c.Order != i+1 {
				cp := *c
				cp.Order = i + 1
				p.Children[i] = &cp
			}
		}
	}), nil
}

// pathOf returns the child indices leading from root to key; an empty path
// addresses root itself.
func pathOf(root *Node, key string) ([]int, bool) {
	if root.Key == key {
		return []int{}, true
	}
	return indexPath(root.Children, key)
}

func nodeAt(root *Node, path []int) *Node {
	n := root
	for _, i := range path {
		n = n.Children[i]
	}
	return n
}

// updateAt copies every node from root down to path and applies fn to the
// copy of the last one. Siblings off the path are shared.
func updateAt(root *Node, path []int, fn func(*Node)) *Node {
	cp := root.shallow()
	if len(path) == 0 {
		fn(cp)
		return cp
	}
	cp.Children[path[0]] = updateAt(cp.Children[path[0]], path[1:], fn)
	return cp
}

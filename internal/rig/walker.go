package rig

import "vrm-avatar/internal/skeleton"

// DefaultMaxDepth bounds how deep Walk descends below the starting bone.
const DefaultMaxDepth = 12

// Node is one bone of the serialized tree sent to the motion service.
// Matrix is the bone's world matrix, 16 column-major floats.
type Node struct {
	Name     string      `json:"name"`
	Matrix   [16]float64 `json:"matrix"`
	Children []*Node     `json:"children"`
}

// Walk serializes the hierarchy below root depth first, pre-order, renaming
// every bone with ToGenericName and recording the reverse mapping. Bones at a
// depth greater than maxDepth (root is depth 0) are omitted with their
// subtrees; maxDepth <= 0 means DefaultMaxDepth. Each bone's world matrix is
// refreshed from its ancestor chain before it is read. A nil root yields a nil
// tree and an empty map.
func Walk(root *skeleton.Bone, maxDepth int) (*Node, *NameMap) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	names := NewNameMap()
	return walk(root, maxDepth, 0, names), names
}

func walk(b *skeleton.Bone, maxDepth, depth int, names *NameMap) *Node {
	if b == nil || depth > maxDepth {
		return nil
	}

	b.RefreshWorld()
	generic := ToGenericName(b.Name)
	names.Set(generic, b.Name)

	node := &Node{
		Name:     generic,
		Matrix:   b.WorldMatrix(),
		Children: []*Node{},
	}
	for _, c := range b.Children {
		if child := walk(c, maxDepth, depth+1, names); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

package tick

// Insert splices leaf under the first node tagged anchor, as its first child
// when before is set and as its last child otherwise. It returns false and
// leaves the tree untouched if the anchor is missing or leaf is already a
// child of the anchor.
func Insert(tree Tree, anchor Tag, before bool, leaf *Node) bool {
	parent := tree.FindNode(anchor)
	if parent == nil {
		return false
	}

	if parent.IndexOf(leaf) >= 0 {
		return false
	}

	index := parent.NumChildren()
	if before {
		index = 0
	}

	tree.InsertChild(parent, index, leaf)

	return true
}

// Remove takes leaf out of the first node tagged anchor. It returns false if
// the anchor is missing or does not hold leaf.
func Remove(tree Tree, anchor Tag, leaf *Node) bool {
	parent := tree.FindNode(anchor)
	if parent == nil {
		return false
	}

	return tree.RemoveChild(parent, leaf)
}

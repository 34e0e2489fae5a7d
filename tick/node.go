// Package tick models the host's ordered per-frame callback tree and the
// surgery needed to splice scheduler callbacks into it.
package tick

// Tag identifies a node of the tick tree, such as a frame phase.
type Tag string

// The phases of the default tick tree, in execution order.
const (
	TagRoot           Tag = "PlayerLoop"
	TagInitialization Tag = "Initialization"
	TagEarlyUpdate    Tag = "EarlyUpdate"
	TagFixedUpdate    Tag = "FixedUpdate"
	TagPreUpdate      Tag = "PreUpdate"
	TagUpdate         Tag = "Update"
	TagPreLateUpdate  Tag = "PreLateUpdate"
	TagPostLateUpdate Tag = "PostLateUpdate"
)

// Script-run leaves of the default tick tree, where host behaviours execute.
const (
	TagScriptRunFixedUpdate Tag = "FixedUpdate.ScriptRunBehaviourFixedUpdate"
	TagScriptRunUpdate      Tag = "Update.ScriptRunBehaviourUpdate"
	TagScriptRunLateUpdate  Tag = "PreLateUpdate.ScriptRunBehaviourLateUpdate"
	TagFinishFrameRendering Tag = "PostLateUpdate.FinishFrameRendering"
)

// A Node is one callback site of the tick tree. Its Update runs before its
// children.
type Node struct {
	Tag    Tag
	Update func()

	children []*Node
}

// NewNode creates a node.
func NewNode(tag Tag, update func()) *Node {
	return &Node{Tag: tag, Update: update}
}

// Children returns a copy of the direct children.
func (n *Node) Children() []*Node {
	children := make([]*Node, len(n.children))
	copy(children, n.children)

	return children
}

// NumChildren returns the number of direct children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// IndexOf returns the position of child among the direct children, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}

	return -1
}

func (n *Node) find(tag Tag) *Node {
	if n.Tag == tag {
		return n
	}

	for _, c := range n.children {
		if found := c.find(tag); found != nil {
			return found
		}
	}

	return nil
}

func (n *Node) insert(index int, child *Node) {
	if index < 0 {
		index = 0
	}

	if index > len(n.children) {
		index = len(n.children)
	}

	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child
}

func (n *Node) remove(child *Node) bool {
	i := n.IndexOf(child)
	if i < 0 {
		return false
	}

	children := make([]*Node, 0, len(n.children)-1)
	children = append(children, n.children[:i]...)
	children = append(children, n.children[i+1:]...)
	n.children = children

	return true
}

// Tree is the host-owned tick tree that callbacks are spliced into.
type Tree interface {
	// Root returns the top node.
	Root() *Node

	// FindNode returns the first node carrying tag in depth-first pre-order,
	// or nil.
	FindNode(tag Tag) *Node

	// InsertChild inserts child under parent at index. Out-of-range indexes
	// are clamped.
	InsertChild(parent *Node, index int, child *Node)

	// RemoveChild removes child from parent's children and reports whether
	// it was there.
	RemoveChild(parent *Node, child *Node) bool
}

// PlayerLoop is the in-memory Tree implementation.
type PlayerLoop struct {
	root *Node
}

// NewPlayerLoop creates a tree with the given root.
func NewPlayerLoop(root *Node) *PlayerLoop {
	return &PlayerLoop{root: root}
}

// NewDefaultPlayerLoop creates a tree with the standard frame phases. The
// script-run leaves invoke scripts(tag) when they run.
func NewDefaultPlayerLoop(scripts func(tag Tag)) *PlayerLoop {
	leaf := func(tag Tag) *Node {
		return NewNode(tag, func() {
			if scripts != nil {
				scripts(tag)
			}
		})
	}

	phase := func(tag Tag, leaves ...*Node) *Node {
		n := NewNode(tag, nil)
		for _, l := range leaves {
			n.insert(n.NumChildren(), l)
		}

		return n
	}

	root := phase(TagRoot,
		phase(TagInitialization),
		phase(TagEarlyUpdate),
		phase(TagFixedUpdate, leaf(TagScriptRunFixedUpdate)),
		phase(TagPreUpdate),
		phase(TagUpdate, leaf(TagScriptRunUpdate)),
		phase(TagPreLateUpdate, leaf(TagScriptRunLateUpdate)),
		phase(TagPostLateUpdate, leaf(TagFinishFrameRendering)),
	)

	return NewPlayerLoop(root)
}

// Root returns the top node.
func (l *PlayerLoop) Root() *Node {
	return l.root
}

// FindNode searches the tree depth first.
func (l *PlayerLoop) FindNode(tag Tag) *Node {
	if l.root == nil {
		return nil
	}

	return l.root.find(tag)
}

// InsertChild inserts child under parent.
func (l *PlayerLoop) InsertChild(parent *Node, index int, child *Node) {
	parent.insert(index, child)
}

// RemoveChild removes child from parent.
func (l *PlayerLoop) RemoveChild(parent *Node, child *Node) bool {
	return parent.remove(child)
}

// Walk visits every node in execution order. Children are captured before
// they are visited, so a callback may splice the tree while it is walked.
func Walk(n *Node, visit func(n *Node)) {
	visit(n)

	for _, c := range n.Children() {
		Walk(c, visit)
	}
}

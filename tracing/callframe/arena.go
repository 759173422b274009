package callframe

// node is one call-tree entry in the arena: the root (index 0) plus
// one entry per child call/create frame, linked by parent index.
type node struct {
	parent   *int
	children []int
	idx      int
	trace    callTrace
}

// arena is the depth-first call tree a single transaction's execution
// builds up. Adapted from the teacher's CallTraceArena: PushTrace walks
// down the rightmost spine of the tree until it finds the node whose
// depth is one less than the new frame's depth, then attaches there.
// That walk is what lets OnEnter/OnExit push frames in pure execution
// order without the inspector having to track parent indices itself.
type arena struct {
	nodes []node
}

func newArena() *arena {
	return &arena{nodes: []node{{}}}
}

// pushTrace inserts newTrace into the tree and returns its index. The
// root frame (depth 0) overwrites nodes[0] in place and returns 0.
func (a *arena) pushTrace(entry int, attachToParent bool, newTrace callTrace) int {
	for {
		if newTrace.depth == 0 {
			a.nodes[0].trace = newTrace
			return 0
		}
		if a.nodes[entry].trace.depth == newTrace.depth-1 {
			id := len(a.nodes)
			parent := entry
			a.nodes = append(a.nodes, node{parent: &parent, trace: newTrace, idx: id})
			if attachToParent {
				p := &a.nodes[entry]
				p.children = append(p.children, id)
			}
			return id
		}
		parentNode := a.nodes[entry]
		if len(parentNode.children) == 0 {
			panic("callframe: disconnected trace")
		}
		entry = parentNode.children[len(parentNode.children)-1]
	}
}

func (a *arena) nodeAt(idx int) *node { return &a.nodes[idx] }

// traceableNodes returns every node that should surface as a
// TransactionTrace, i.e. every node except precompile calls (Parity
// traces never include a precompile invocation as its own frame).
func (a *arena) traceableNodes() []node {
	out := make([]node, 0, len(a.nodes))
	for _, n := range a.nodes {
		if n.trace.maybePrecompile {
			continue
		}
		out = append(out, n)
	}
	return out
}

// traceAddress computes the depth-first child-index path identifying
// nodes[idx] within the call tree, per spec.md's trace_address invariant.
func (a *arena) traceAddress(idx int) []uint64 {
	if idx == 0 {
		return []uint64{}
	}
	n := a.nodes[idx]
	if n.trace.maybePrecompile {
		return []uint64{}
	}
	path := make([]uint64, 0, n.trace.depth)
	for n.parent != nil {
		childIdx := n.idx
		parentIdx := *n.parent
		parent := a.nodes[parentIdx]
		pos := -1
		for i, c := range parent.children {
			if c == childIdx {
				pos = i
				break
			}
		}
		if pos < 0 {
			panic("callframe: child not found in parent's children")
		}
		path = append(path, uint64(pos))
		n = parent
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}

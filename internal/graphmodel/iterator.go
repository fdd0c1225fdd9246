package graphmodel

// NodeIterator is a lazy sequence of nodes behind a Next/Node/Collect/
// Close/Err calling convention. The in-memory source is a slice, but the
// shape allows a store-backed iterator (over a SQL cursor or a streamed
// result) to replace it without touching call sites.
type NodeIterator struct {
	nodes []Node
	pos   int
}

// Next advances the iterator. Returns false when exhausted.
func (it *NodeIterator) Next() bool {
	if it.pos >= len(it.nodes) {
		return false
	}
	it.pos++
	return true
}

// Node returns the current element. Only valid after a true Next().
func (it *NodeIterator) Node() Node {
	return it.nodes[it.pos-1]
}

// Collect drains the remainder of the iterator into a slice.
func (it *NodeIterator) Collect() []Node {
	rest := append([]Node(nil), it.nodes[it.pos:]...)
	it.pos = len(it.nodes)
	return rest
}

// Err is always nil for the in-memory iterator; kept for interface parity
// with store-backed iterators that can fail mid-stream.
func (it *NodeIterator) Err() error { return nil }

// Close is a no-op for the in-memory iterator; kept for interface parity.
func (it *NodeIterator) Close() error { return nil }

// EdgeIterator is the edge-sequence analogue of NodeIterator.
type EdgeIterator struct {
	edges []Edge
	pos   int
}

func (it *EdgeIterator) Next() bool {
	if it.pos >= len(it.edges) {
		return false
	}
	it.pos++
	return true
}

func (it *EdgeIterator) Edge() Edge {
	return it.edges[it.pos-1]
}

func (it *EdgeIterator) Collect() []Edge {
	rest := append([]Edge(nil), it.edges[it.pos:]...)
	it.pos = len(it.edges)
	return rest
}

func (it *EdgeIterator) Err() error   { return nil }
func (it *EdgeIterator) Close() error { return nil }

package art

import "sync"

// nodePool holds one sync.Pool per node size class plus one for
// externalLeaf, grounded on the teacher's NodePool.go scheme. Reclamation
// only returns a retired inner node to its pool once the epoch collector
// has confirmed no reader can still be following a pointer to it
// (gc.go). Node construction (newNode4 and the others) does not draw
// from these pools; externalLeaf values are drawn from the leaf pool by
// getLeaf and are never retired back into it.
type nodePool struct {
	n4   sync.Pool
	n16  sync.Pool
	n48  sync.Pool
	n256 sync.Pool
	leaf sync.Pool
}

func newNodePool() *nodePool {
	p := &nodePool{}
	p.n4.New = func() any { return &node4{} }
	p.n16.New = func() any { return &node16{} }
	p.n48.New = func() any { return &node48{} }
	p.n256.New = func() any { return &node256{} }
	p.leaf.New = func() any { return &externalLeaf{} }
	return p
}

func (p *nodePool) getNode4(prefix []byte) *node4 {
	n := p.n4.Get().(*node4)
	*n = node4{nodeHeader: newHeader(typeNode4, prefix)}
	return n
}

func (p *nodePool) getNode16(prefix []byte) *node16 {
	n := p.n16.Get().(*node16)
	*n = node16{nodeHeader: newHeader(typeNode16, prefix)}
	return n
}

func (p *nodePool) getNode48(prefix []byte) *node48 {
	n := p.n48.Get().(*node48)
	*n = node48{nodeHeader: newHeader(typeNode48, prefix)}
	return n
}

func (p *nodePool) getNode256(prefix []byte) *node256 {
	n := p.n256.Get().(*node256)
	*n = node256{nodeHeader: newHeader(typeNode256, prefix)}
	return n
}

// putNode returns n to its size-class pool. Called only from a deleter
// registered with the epoch collector, never directly from an operation
// still holding a lock on a live tree.
func (p *nodePool) putNode(n innerNode) {
	switch v := n.(type) {
	case *node4:
		p.n4.Put(v)
	case *node16:
		p.n16.Put(v)
	case *node48:
		p.n48.Put(v)
	case *node256:
		p.n256.Put(v)
	}
}

func (p *nodePool) getLeaf(first TID) *externalLeaf {
	l := p.leaf.Get().(*externalLeaf)
	*l = externalLeaf{tids: append(l.tids[:0], first)}
	return l
}

func (p *nodePool) putLeaf(l *externalLeaf) { p.leaf.Put(l) }

// deleterFor wraps putNode/putLeaf as the `any -> void` deleter shape
// DeletionList.Add expects, so gc.go never needs to know node variants.
func (p *nodePool) deleterFor(v any) func(any) {
	switch v.(type) {
	case innerNode:
		return func(x any) { p.putNode(x.(innerNode)) }
	case *externalLeaf:
		return func(x any) { p.putLeaf(x.(*externalLeaf)) }
	default:
		return func(any) {}
	}
}

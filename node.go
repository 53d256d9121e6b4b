package art

// maxPrefixLen is P from spec.md §3: the inline prefix buffer capacity.
// A node whose true prefix is longer stores only the first maxPrefixLen
// bytes inline; the remainder is recovered optimistically via a
// representative leaf key (see prefix.go).
const maxPrefixLen = 11

// childKind discriminates what a child slot currently holds. Modeled as a
// Go sum type (an enum tag plus the relevant field) per spec.md §9's note
// that a language with tagged unions should prefer that over the source's
// pointer-tag-bits trick.
type childKind uint8

const (
	childEmpty childKind = iota
	childInner
	childInlineLeaf
	childExternalLeaf
)

// child is one slot in an inner node's child array/table. Exactly one of
// inner, tid, ext is meaningful, selected by kind.
type child struct {
	kind childKind
	inner innerNode
	tid   TID
	ext   *externalLeaf
}

var emptyChild = child{kind: childEmpty}

func leafChild(tid TID) child { return child{kind: childInlineLeaf, tid: tid} }

func externalChild(e *externalLeaf) child { return child{kind: childExternalLeaf, ext: e} }

func innerChild(n innerNode) child { return child{kind: childInner, inner: n} }

func (c child) isLeaf() bool {
	return c.kind == childInlineLeaf || c.kind == childExternalLeaf
}

// innerNode is implemented by node4, node16, node48, and node256. Structural
// mutation methods assume the caller already holds the node's write lock;
// read methods are safe under the optimistic read-lock protocol in lock.go
// as long as the caller revalidates the sampled version afterward.
type innerNode interface {
	base() *nodeHeader
	nodeType() nodeType
	count() int
	full() bool
	underfull() bool

	// getChild returns the child stored at the given key byte, if any.
	getChild(key byte) (child, bool)
	// addChild inserts a new child at the given key byte. The caller must
	// have verified the node is not full.
	addChild(key byte, c child)
	// replaceChild overwrites the child stored at the given key byte,
	// which must already exist.
	replaceChild(key byte, c child)
	// removeChild deletes the child at the given key byte, which must
	// already exist.
	removeChild(key byte)
	// anyChild returns an arbitrary child, used to resolve a
	// representative key for optimistic prefix checks.
	anyChild() (child, bool)
	// firstChildAtOrAfter returns the lowest-keyed child whose key byte is
	// >= start. LookupRange does not call it; it walks children with
	// forEach.
	firstChildAtOrAfter(start byte) (byte, child, bool)
	// lastChildAtOrBefore returns the highest-keyed child whose key byte
	// is <= end. LookupRange does not call it either.
	lastChildAtOrBefore(end byte) (byte, child, bool)
	// forEach iterates children in ascending key-byte order.
	forEach(fn func(key byte, c child))

	// grow returns a new, larger-variant node with this node's children
	// and prefix copied over. Used when full() and an insert needs room.
	grow() innerNode
	// shrink returns a new, smaller-variant node with this node's
	// children and prefix copied over. Remove does not call it: a node
	// that becomes underfull() keeps its variant.
	shrink() innerNode
}

// nodeHeader is the common state every inner node variant embeds: the
// version lock word, the inline prefix buffer, and the true prefix
// length (which may exceed maxPrefixLen - see spec.md §3's "Node
// invariants").
type nodeHeader struct {
	lock       lockWord
	prefix     [maxPrefixLen]byte
	prefixLen  uint32
}

func (h *nodeHeader) base() *nodeHeader { return h }

// prefixBytes returns the stored (possibly truncated) prefix bytes: either
// the whole prefix, when it fits, or the first maxPrefixLen bytes.
func (h *nodeHeader) prefixBytes() []byte {
	n := int(h.prefixLen)
	if n > maxPrefixLen {
		n = maxPrefixLen
	}
	return h.prefix[:n]
}

func (h *nodeHeader) setPrefix(p []byte) {
	h.prefixLen = uint32(len(p))
	n := copy(h.prefix[:], p)
	for i := n; i < maxPrefixLen; i++ {
		h.prefix[i] = 0
	}
}

func newHeader(t nodeType, prefix []byte) nodeHeader {
	h := nodeHeader{lock: newLockWord(t)}
	h.setPrefix(prefix)
	return h
}

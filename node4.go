package art

// node4 is the smallest fan-out variant: a linear array of up to 4 key
// bytes and children, kept in ascending key order and scanned with a
// short linear search. Grounded
// on original_source/src/include/index/art_node.h's Node4 and the
// teacher's flat-array child storage in Node.go.
type node4 struct {
	nodeHeader
	n        uint8
	keys     [4]byte
	children [4]child
}

func newNode4(prefix []byte) *node4 {
	return &node4{nodeHeader: newHeader(typeNode4, prefix)}
}

func (n *node4) nodeType() nodeType { return typeNode4 }
func (n *node4) count() int         { return int(n.n) }
func (n *node4) full() bool         { return n.n == 4 }
func (n *node4) underfull() bool    { return n.n <= 2 }

func (n *node4) getChild(key byte) (child, bool) {
	for i := uint8(0); i < n.n; i++ {
		if n.keys[i] == key {
			return n.children[i], true
		}
	}
	return child{}, false
}

func (n *node4) addChild(key byte, c child) {
	i := uint8(0)
	for ; i < n.n; i++ {
		if n.keys[i] > key {
			break
		}
	}
	copy(n.keys[i+1:n.n+1], n.keys[i:n.n])
	copy(n.children[i+1:n.n+1], n.children[i:n.n])
	n.keys[i] = key
	n.children[i] = c
	n.n++
}

func (n *node4) replaceChild(key byte, c child) {
	for i := uint8(0); i < n.n; i++ {
		if n.keys[i] == key {
			n.children[i] = c
			return
		}
	}
}

func (n *node4) removeChild(key byte) {
	for i := uint8(0); i < n.n; i++ {
		if n.keys[i] == key {
			copy(n.keys[i:n.n-1], n.keys[i+1:n.n])
			copy(n.children[i:n.n-1], n.children[i+1:n.n])
			n.n--
			return
		}
	}
}

func (n *node4) anyChild() (child, bool) {
	if n.n == 0 {
		return child{}, false
	}
	return n.children[0], true
}

func (n *node4) firstChildAtOrAfter(start byte) (byte, child, bool) {
	for i := uint8(0); i < n.n; i++ {
		if n.keys[i] >= start {
			return n.keys[i], n.children[i], true
		}
	}
	return 0, child{}, false
}

func (n *node4) lastChildAtOrBefore(end byte) (byte, child, bool) {
	for i := int(n.n) - 1; i >= 0; i-- {
		if n.keys[i] <= end {
			return n.keys[i], n.children[i], true
		}
	}
	return 0, child{}, false
}

func (n *node4) forEach(fn func(key byte, c child)) {
	for i := uint8(0); i < n.n; i++ {
		fn(n.keys[i], n.children[i])
	}
}

func (n *node4) grow() innerNode {
	g := newNode16(n.prefixBytes())
	g.prefixLen = n.prefixLen
	for i := uint8(0); i < n.n; i++ {
		g.addChild(n.keys[i], n.children[i])
	}
	return g
}

// shrink on node4 has no smaller variant; Remove collapses a 1-child
// node4 directly in operation.go instead of calling shrink.
func (n *node4) shrink() innerNode { return n }

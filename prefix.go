package art

// prefixCompareResult classifies how a node's prefix relates to the
// search key at a given depth. Named after PCCompareResults in
// original_source/src/include/index/art.h.
type prefixCompareResult uint8

const (
	prefixMatch prefixCompareResult = iota
	prefixNoMatch
)

// checkPrefixOptimistic advances depth past n's prefix without
// byte-comparing it against key when the prefix is longer than the
// inline buffer, trusting the caller to revalidate via the node's
// version word (spec.md §4.3, "optimistic prefix skip"). It only
// compares the bytes it actually has on hand.
func checkPrefixOptimistic(n innerNode, key []byte, depth int) (newDepth int, ok bool) {
	h := n.base()
	pl := int(h.prefixLen)
	if pl == 0 {
		return depth, true
	}
	stored := h.prefixBytes()
	for i := 0; i < len(stored); i++ {
		if depth+i >= len(key) || key[depth+i] != stored[i] {
			return depth, false
		}
	}
	return depth + pl, true
}

// checkPrefixPessimistic byte-compares as much of n's prefix as is
// available - the inline bytes, plus (when the true prefix exceeds
// maxPrefixLen) bytes recovered from a representative leaf's key via
// resolveKey - against key starting at depth. It returns the number of
// matching bytes and whether the match was complete.
//
// Used by Insert, which must find the exact point of divergence to
// build a replacement node4, so it cannot rely on the optimistic skip.
func checkPrefixPessimistic(n innerNode, key []byte, depth int, resolveKey func(child) []byte) (matched int, isFullMatch bool) {
	h := n.base()
	pl := int(h.prefixLen)
	if pl == 0 {
		return 0, true
	}

	var full []byte
	if pl <= maxPrefixLen {
		full = h.prefixBytes()
	} else {
		c, ok := n.anyChild()
		for ok && c.kind == childInner {
			c, ok = c.inner.anyChild()
		}
		if !ok {
			full = h.prefixBytes()
		} else {
			leafKey := resolveKey(c)
			end := depth + pl
			if end > len(leafKey) {
				end = len(leafKey)
			}
			if depth > end {
				full = nil
			} else {
				full = leafKey[depth:end]
			}
		}
	}

	for i := 0; i < len(full); i++ {
		if depth+i >= len(key) || key[depth+i] != full[i] {
			return i, false
		}
	}
	return len(full), len(full) == pl
}

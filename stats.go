package art

import "golang.org/x/sys/cpu"

// Stats reports structural counters plus a hint about whether the
// runtime CPU could in principle support the source's SIMD-accelerated
// Node16 key scan (not implemented here, per SPEC_FULL.md's note that
// Go has no portable intrinsic for it - bytes.IndexByte is used
// instead). Surfaced for diagnostics/telemetry, grounded on the
// teacher's Compact.go background stats reporting.
type Stats struct {
	Node4Count   int
	Node16Count  int
	Node48Count  int
	Node256Count int
	LeafCount    int
	SSE2Capable  bool
}

// CollectStats walks the tree once under the optimistic read protocol
// and tallies node variant counts. Intended for monitoring, not the hot
// path: it takes no locks beyond each node's own version check and may
// retry on conflict like any other read.
func (t *Tree) CollectStats() (Stats, error) {
	var s Stats
	s.SSE2Capable = cpu.X86.HasSSE2

	holder := t.loadRoot()
	if holder.root == nil {
		return s, nil
	}

	var walk func(n innerNode) error
	walk = func(n innerNode) error {
		h := n.base()
		version, err := h.lock.readLockOrRestart()
		if err != nil {
			return err
		}

		switch n.nodeType() {
		case typeNode4:
			s.Node4Count++
		case typeNode16:
			s.Node16Count++
		case typeNode48:
			s.Node48Count++
		case typeNode256:
			s.Node256Count++
		}

		var children []child
		n.forEach(func(_ byte, c child) { children = append(children, c) })

		if err := h.lock.readUnlockOrRestart(version); err != nil {
			return err
		}

		for _, c := range children {
			if c.isLeaf() {
				s.LeafCount++
				continue
			}
			if err := walk(c.inner); err != nil {
				return err
			}
		}
		return nil
	}

	for attempt := 0; ; attempt++ {
		s = Stats{SSE2Capable: s.SSE2Capable}
		if err := walk(holder.root); err == nil {
			return s, nil
		} else if err != errRestart {
			return s, err
		}
		if attempt >= maxRestartAttempts {
			return s, errRestart
		}
		spinBackoff(attempt)
	}
}

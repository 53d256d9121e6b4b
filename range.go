package art

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sirgallo/art/epoch"
)

// Visit is called once per matching entry during a range scan, in
// ascending key order. Returning false stops the scan early.
type Visit func(key []byte, tid TID) bool

// LookupRange walks every key k with start <= k <= end in ascending
// order, calling visit for each (key, TID) pair - or each (key, TID) per
// duplicate when a key holds more than one TID. The scan restarts from
// the root on any optimistic-lock conflict, so visit may be called more
// than once for the same entry if a concurrent writer forces a restart
// after partial progress; callers needing exactly-once semantics should
// make visit idempotent. With a key resolver (WithKeyResolver), visit
// receives each entry's full key. Without one, it receives the byte path
// leading to the leaf, which omits the key's bytes below the leaf's
// position and any node-prefix bytes past maxPrefixLen, and the bounds
// are compared against that path. Grounded on the teacher's Range.go
// recursive bounded scan, generalized to the optimistic read protocol.
func (t *Tree) LookupRange(ctx context.Context, start, end []byte, visit Visit) error {
	for attempt := 0; ; attempt++ {
		err := t.rangeOnce(ctx, start, end, visit)
		if err == nil {
			return nil
		}
		if errors.Is(err, errStopScan) {
			return nil
		}
		if !errors.Is(err, errRestart) {
			return err
		}
		if attempt >= maxRestartAttempts {
			return errors.Wrap(err, "art: range scan exceeded restart budget")
		}
		spinBackoff(attempt)
	}
}

var errStopScan = errors.New("art: range scan stopped by visitor")

func (t *Tree) rangeOnce(ctx context.Context, start, end []byte, visit Visit) error {
	ti, cid := t.acquireThread(epoch.TimestampRead)
	defer t.releaseThread(ti, cid)

	holder := t.loadRoot()
	if holder.root == nil {
		return nil
	}
	var prefix []byte
	return t.rangeDescend(ctx, holder.root, prefix, start, end, visit)
}

// rangeDescend visits every leaf reachable from node whose full key
// falls within [start, end], given that prefix is the key bytes already
// consumed to reach node. It trusts the node's optimistic version check
// the same way findLeaf does: a version mismatch at any point means
// some concurrent structural change may have been missed, so the whole
// scan restarts from the root rather than trying to resume mid-way.
func (t *Tree) rangeDescend(ctx context.Context, node innerNode, prefix, start, end []byte, visit Visit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h := node.base()
	version, err := h.lock.readLockOrRestart()
	if err != nil {
		return err
	}

	nodePrefix := h.prefixBytes()
	if pl, d := int(h.prefixLen), len(prefix); pl > maxPrefixLen {
		// Recover the bytes past the inline buffer from a representative
		// leaf's key, as checkPrefixPessimistic does.
		c, ok := node.anyChild()
		for ok && c.kind == childInner {
			c, ok = c.inner.anyChild()
		}
		if lk := t.resolveKey(c); d+pl <= len(lk) {
			nodePrefix = lk[d : d+pl]
		}
	}
	full := append(append([]byte(nil), prefix...), nodePrefix...)

	var visitErr error
	node.forEach(func(key byte, c child) {
		if visitErr != nil {
			return
		}
		childPrefix := append(append([]byte(nil), full...), key)

		if c.isLeaf() {
			for _, tid := range leafTIDs(c) {
				leafKey := childPrefix
				if t.keyOf != nil {
					leafKey = t.keyOf(tid)
				}
				if !withinBounds(leafKey, start, end) {
					continue
				}
				if !visit(leafKey, tid) {
					visitErr = errStopScan
					return
				}
			}
			return
		}

		if !boundsOverlapSubtree(childPrefix, start, end) {
			return
		}
		if err := t.rangeDescend(ctx, c.inner, childPrefix, start, end, visit); err != nil {
			visitErr = err
		}
	})
	if visitErr != nil {
		return visitErr
	}

	return h.lock.readUnlockOrRestart(version)
}

func leafTIDs(c child) []TID {
	if tid, ok := singleTID(c); ok {
		return []TID{tid}
	}
	return c.ext.snapshot()
}

// withinBounds reports whether key falls within [start, end] (either
// bound empty means unbounded on that side).
func withinBounds(key, start, end []byte) bool {
	if len(start) > 0 && Compare(key, start) < 0 {
		return false
	}
	if len(end) > 0 && Compare(key, end) > 0 {
		return false
	}
	return true
}

// boundsOverlapSubtree reports whether any key starting with prefix
// could fall within [start, end], used to prune subtrees the scan range
// cannot reach.
func boundsOverlapSubtree(prefix, start, end []byte) bool {
	if len(start) > 0 {
		n := len(prefix)
		if n > len(start) {
			n = len(start)
		}
		if Compare(prefix[:n], start[:n]) < 0 {
			return false
		}
	}
	if len(end) > 0 {
		n := len(prefix)
		if n > len(end) {
			n = len(end)
		}
		if Compare(prefix[:n], end[:n]) > 0 {
			return false
		}
	}
	return true
}

package art

import "sync"

// TID is a tuple identifier: an opaque handle into the MVCC table that
// owns the actual row versions. The index only stores and orders TIDs;
// it never interprets them. Mirrors ItemPointer in the source this is
// ported from.
type TID uint64

// externalLeaf backs a key that currently maps to more than one TID
// (duplicate keys are legal per spec.md §3's "Leaf" definition - think a
// secondary, non-unique index). A dedicated mutex guards the slice since
// the version list can grow across concurrent inserters that all agree
// on the same key. Grounded on the teacher's Version.go version-chain
// append pattern, generalized from "one key, growing version chain" to
// "one key, growing TID list".
type externalLeaf struct {
	mu   sync.Mutex
	tids []TID
}

func newExternalLeaf(first TID) *externalLeaf {
	return &externalLeaf{tids: []TID{first}}
}

// append adds tid to the list if not already present, preserving
// insertion order so the oldest TID for a duplicate key is found first.
func (e *externalLeaf) append(tid TID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tids {
		if t == tid {
			return
		}
	}
	e.tids = append(e.tids, tid)
}

// remove deletes tid from the list, reporting whether the list is now
// empty so the caller can collapse the leaf out of the tree entirely.
func (e *externalLeaf) remove(tid TID) (empty bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, t := range e.tids {
		if t == tid {
			e.tids = append(e.tids[:i], e.tids[i+1:]...)
			break
		}
	}
	return len(e.tids) == 0
}

// snapshot returns a copy of the current TID list for a reader to scan
// without holding the leaf's lock.
func (e *externalLeaf) snapshot() []TID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TID, len(e.tids))
	copy(out, e.tids)
	return out
}

// singleTID is a convenience for the common single-TID case, used by
// Lookup to avoid allocating a slice when the leaf is inline.
func singleTID(c child) (TID, bool) {
	if c.kind == childInlineLeaf {
		return c.tid, true
	}
	return 0, false
}

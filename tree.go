package art

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/sirgallo/art/epoch"
)

// rootHolder indirects the tree's root pointer so it can be swapped with
// a single CAS even though innerNode is an interface value (Go gives no
// atomic primitive over interfaces directly, only over a pointer to
// one). Mirrors the teacher's Meta.go atomic-root-pointer pattern.
type rootHolder struct {
	root innerNode
}

// Tree is a concurrent Adaptive Radix Tree mapping byte-string keys to
// TIDs, safe for any number of concurrent readers and writers. Grounded
// on the teacher's Mari.go top-level struct, generalized from the
// teacher's disk-backed HAMT to an in-memory ART per spec.md §2.
type Tree struct {
	rootPtr unsafe.Pointer // *rootHolder

	pool      *nodePool
	epochMgr  *epoch.Manager
	collector *Collector
	threads   sync.Pool

	log          *zap.Logger
	tickInterval time.Duration
	keyOf        func(TID) []byte
}

// Option configures a Tree at construction time.
type Option func(*Tree)

// WithLogger attaches a zap logger. It is passed to the epoch manager,
// which logs each epoch advance at Debug level; the tree itself logs
// nothing. Without this option a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tree) { t.log = l }
}

// WithTickInterval overrides the epoch manager's background tick
// interval; see epoch.DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tree) { t.tickInterval = d }
}

// WithKeyResolver supplies a callback the tree uses to recover the full
// key bytes behind a TID. Insert and Remove use it when a node's true
// prefix exceeds maxPrefixLen and the pessimistic prefix check must
// consult a representative leaf (prefix.go), and Insert uses it to tell a
// duplicate key from a different key reaching the same leaf. Lookup uses
// it to verify a leaf's full key (verifyLeafKey), and LookupRange to
// report and bound-check full keys. Without it, a descent that reaches a
// leaf is treated as a match.
func WithKeyResolver(fn func(TID) []byte) Option {
	return func(t *Tree) { t.keyOf = fn }
}

// New constructs an empty Tree and starts its background epoch ticker.
// Callers should call Close when done to stop that goroutine.
func New(opts ...Option) *Tree {
	t := &Tree{
		pool: newNodePool(),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.epochMgr = epoch.New(t.tickInterval, t.log)
	t.collector = newCollector(t.epochMgr)
	// Each ThreadInfo is registered with the collector exactly once, at
	// the moment the pool actually allocates a new one - not on every
	// acquireThread call, which would otherwise append a fresh,
	// never-removed entry to the collector's thread list on every single
	// operation.
	t.threads.New = func() any {
		ti := newThreadInfo(t.epochMgr)
		t.collector.register(ti)
		return ti
	}

	holder := &rootHolder{}
	atomic.StorePointer(&t.rootPtr, unsafe.Pointer(holder))
	return t
}

// Close stops the tree's background epoch ticker. It does not release
// node memory; that remains valid until the process exits, same as any
// other in-memory Go structure.
func (t *Tree) Close() { t.epochMgr.Close() }

func (t *Tree) loadRoot() *rootHolder {
	return (*rootHolder)(atomic.LoadPointer(&t.rootPtr))
}

func (t *Tree) casRoot(old, new *rootHolder) bool {
	return atomic.CompareAndSwapPointer(&t.rootPtr, unsafe.Pointer(old), unsafe.Pointer(new))
}

// acquireThread borrows a per-goroutine ThreadInfo for the duration of
// one operation and enters the epoch manager on its behalf with the
// given timestamp kind, modeling the source's EpochGuard RAII wrapper
// without needing a defer-based destructor. The returned CommitID must
// be passed to releaseThread to exit the same epoch it entered.
func (t *Tree) acquireThread(kind epoch.TimestampKind) (*PaddedThreadInfo, epoch.CommitID) {
	ti := t.threads.Get().(*PaddedThreadInfo)
	cid, err := t.epochMgr.Enter(ti.Local, kind)
	if err != nil {
		// Closed tree, or (for a commit/read entry) a rejected regressed
		// epoch: fall back to a snapshot entry, which is never rejected
		// for regression. On a closed manager that entry fails as well,
		// and the operation runs with a zero CommitID and no epoch
		// pinned.
		cid, _ = t.epochMgr.Enter(ti.Local, epoch.TimestampSnapshotRead)
	}
	return ti, cid
}

func (t *Tree) releaseThread(ti *PaddedThreadInfo, cid epoch.CommitID) {
	t.epochMgr.Exit(ti.Local, cid)
	t.threads.Put(ti)
}

// retire hands ptr to the epoch collector for deferred reclamation
// instead of freeing it immediately, since an optimistic reader may
// still hold a pointer to it.
func (t *Tree) retire(ti *PaddedThreadInfo, ptr any) {
	t.collector.retire(ti, ptr, t.pool.deleterFor(ptr))
}

// resolveKey returns the full key bytes for whatever TID a child holds,
// used by checkPrefixPessimistic to recover a truncated prefix's
// remaining bytes from a representative leaf. The index itself does not
// store full keys once a prefix has absorbed them, so this calls back
// into the key resolver supplied at construction when present. Without
// a resolver, or for a child that is not a leaf, it returns nil.
func (t *Tree) resolveKey(c child) []byte {
	if t.keyOf == nil {
		return nil
	}
	switch c.kind {
	case childInlineLeaf:
		return t.keyOf(c.tid)
	case childExternalLeaf:
		if tids := c.ext.snapshot(); len(tids) > 0 {
			return t.keyOf(tids[0])
		}
	}
	return nil
}

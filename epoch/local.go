package epoch

import (
	"container/heap"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// state is a LocalEpoch's position in the Unused/Active/Idle state
// machine from original_source/src/include/concurrency/local_epoch.h.
type state int32

const (
	stateUnused state = iota
	stateActive
	stateIdle
)

// TimestampKind selects how Enter treats a transaction's begin-cid and
// whether it can be rejected for straddling a stale epoch, matching
// TimestampKind in
// original_source/src/include/concurrency/decentralized_epoch_manager.h.
type TimestampKind uint8

const (
	// TimestampCommit is a read-write transaction: it receives a unique,
	// monotonically increasing counter within its epoch and is rejected
	// if the epoch it would enter is at or behind this thread's own
	// lower bound.
	TimestampCommit TimestampKind = iota
	// TimestampRead is a plain read-only transaction: it pins an epoch
	// (so reclamation can't free anything it might still observe) but
	// gets counter 0, since its begin-cid is never compared for commit
	// ordering. Subject to the same regression rejection as Commit.
	TimestampRead
	// TimestampSnapshotRead bypasses the regression check entirely,
	// matching spec.md §9's resolution that snapshot reads should never
	// be rejected for straddling a garbage-collection boundary.
	TimestampSnapshotRead
)

// ErrEpochRegressed is returned by enter when a non-snapshot transaction
// tries to enter an epoch at or behind this thread's own lower bound -
// meaning this thread has already told the manager it is done with that
// epoch and anything at or before it, so re-entering would let it
// observe a state reclamation may have already freed.
var ErrEpochRegressed = errors.New("epoch: epoch at or behind local lower bound")

// epochRef tracks how many of this Local's open transactions currently
// pin a given epoch. A single thread can have more than one open
// transaction against the same epoch, and in principle - though rarely
// in practice - against more than one epoch at once.
type epochRef struct {
	epoch ID
	count int
	index int
}

type epochRefHeap []*epochRef

func (h epochRefHeap) Len() int           { return len(h) }
func (h epochRefHeap) Less(i, j int) bool { return h[i].epoch < h[j].epoch }
func (h epochRefHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *epochRefHeap) Push(x any) {
	e := x.(*epochRef)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *epochRefHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Local is one thread's (goroutine's) epoch participation record. It
// owns a private priority queue of the epochs its own open transactions
// currently pin (keyed by epoch id, refcounted so nested/concurrent
// opens against the same epoch don't unpin early) plus a lower bound
// epoch at or below which re-entry is rejected, matching LocalEpoch in
// original_source/src/include/concurrency/local_epoch.h. Because each
// Local is owned by a single thread, this queue needs no cross-thread
// locking contention beyond protecting against ExpiredEpochID's
// concurrent tailEpoch reads.
type Local struct {
	mu         sync.Mutex
	queue      epochRefHeap
	index      map[ID]*epochRef
	lowerBound ID

	state int32 // atomic state, for diagnostics
}

func newLocal() *Local {
	return &Local{
		index: make(map[ID]*epochRef),
		state: int32(stateUnused),
	}
}

// enter records that this thread is beginning a transaction in epoch e.
// A TimestampCommit or TimestampRead entry at or behind the thread's own
// lower bound is rejected; TimestampSnapshotRead always succeeds.
func (l *Local) enter(e ID, kind TimestampKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if kind != TimestampSnapshotRead && e <= l.lowerBound {
		return ErrEpochRegressed
	}

	ref, ok := l.index[e]
	if !ok {
		ref = &epochRef{epoch: e}
		l.index[e] = ref
		heap.Push(&l.queue, ref)
	}
	ref.count++
	atomic.StoreInt32(&l.state, int32(stateActive))
	return nil
}

// exit closes one transaction this thread opened against epoch e. Once
// no transaction remains open against e, e is dropped from the queue and
// becomes this thread's new lower bound if it is the highest epoch it
// has yet exited.
func (l *Local) exit(e ID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref, ok := l.index[e]
	if !ok {
		return
	}
	ref.count--
	if ref.count <= 0 {
		delete(l.index, e)
		heap.Remove(&l.queue, ref.index)
		if e > l.lowerBound {
			l.lowerBound = e
		}
	}
	if len(l.queue) == 0 {
		atomic.StoreInt32(&l.state, int32(stateIdle))
	}
}

// tailEpoch returns the oldest epoch this thread still has an open
// transaction against, and whether it has any open transaction at all.
func (l *Local) tailEpoch() (ID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return 0, false
	}
	return l.queue[0].epoch, true
}

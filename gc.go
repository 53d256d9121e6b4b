package art

import (
	"sync"
	"sync/atomic"

	"github.com/sirgallo/art/epoch"
)

// labelBatchSize is the capacity of each DeletionList batch, matching the
// fixed-size batch in
// original_source/src/include/concurrency/epoch_manager.h's DeletionList.
// A full batch starts a new one; the number of batches is not bounded.
const labelBatchSize = 128

// label is one deferred reclamation entry: a pointer due for freeing,
// its deleter, and the epoch during which it was retired. It remains
// reachable by any reader that started before that epoch, so it is only
// safe to run deleter once every registered thread has moved past it.
type label struct {
	ptr     any
	deleter func(any)
	epoch   epoch.ID
}

// DeletionList is one thread's queue of pending reclamations, grounded
// on the teacher's NodePool.go sync.Pool recycling combined with
// DeletionList/LabelDelete from the source this is ported from. A
// cleanup latch (a mutex-guarded flag) makes a second concurrent sweep
// of the same list return at once instead of waiting. A running sweep
// holds the list's mutex, so Add calls wait until it finishes.
type DeletionList struct {
	mu      sync.Mutex
	batches [][]label
	latch   int32
}

func newDeletionList() *DeletionList {
	return &DeletionList{batches: [][]label{make([]label, 0, labelBatchSize)}}
}

// Add marks ptr for reclamation once no in-flight transaction can still
// observe it, recording the epoch it was retired in.
func (d *DeletionList) Add(ptr any, deleter func(any), retiredAt epoch.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	last := len(d.batches) - 1
	if len(d.batches[last]) == labelBatchSize {
		d.batches = append(d.batches, make([]label, 0, labelBatchSize))
		last++
	}
	d.batches[last] = append(d.batches[last], label{ptr: ptr, deleter: deleter, epoch: retiredAt})
}

// Sweep frees every label retired strictly before expired, compacting
// the remaining labels forward. Returns the number of entries freed.
func (d *DeletionList) Sweep(expired epoch.ID) int {
	if !d.tryLatch() {
		return 0
	}
	defer d.unlatch()

	d.mu.Lock()
	defer d.mu.Unlock()

	freed := 0
	var kept [][]label
	for _, batch := range d.batches {
		var remaining []label
		for _, l := range batch {
			if l.epoch < expired {
				l.deleter(l.ptr)
				freed++
				continue
			}
			remaining = append(remaining, l)
		}
		if len(remaining) > 0 {
			kept = append(kept, remaining)
		}
	}
	if len(kept) == 0 {
		kept = [][]label{make([]label, 0, labelBatchSize)}
	}
	d.batches = kept
	return freed
}

func (d *DeletionList) tryLatch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latch == 1 {
		return false
	}
	d.latch = 1
	return true
}

func (d *DeletionList) unlatch() {
	d.mu.Lock()
	d.latch = 0
	d.mu.Unlock()
}

// Collector coordinates reclamation across every registered thread's
// DeletionList against the epoch manager's notion of the oldest epoch
// still observable.
type Collector struct {
	mgr     *epoch.Manager
	mu      sync.Mutex
	threads []*PaddedThreadInfo
	marks   uint64
}

func newCollector(mgr *epoch.Manager) *Collector {
	return &Collector{mgr: mgr}
}

func (c *Collector) register(ti *PaddedThreadInfo) {
	c.mu.Lock()
	c.threads = append(c.threads, ti)
	c.mu.Unlock()
}

// Retire marks ptr for deferred reclamation on behalf of ti, tagging it
// with the manager's current epoch. Every 64th retirement also nudges
// the global epoch's expiry computation by running a sweep pass, so a
// burst of deletes doesn't wait indefinitely for the next tick.
func (c *Collector) retire(ti *PaddedThreadInfo, ptr any, deleter func(any)) {
	ti.Deletes.Add(ptr, deleter, c.mgr.Current())
	if marks := atomic.AddUint64(&c.marks, 1); marks%64 == 0 {
		c.sweepAll()
	}
}

// sweepAll runs a reclamation pass over every registered thread's
// DeletionList, freeing anything retired before the oldest epoch any
// in-flight transaction can still observe.
func (c *Collector) sweepAll() int {
	expired := c.mgr.ExpiredEpochID()
	c.mu.Lock()
	threads := append([]*PaddedThreadInfo(nil), c.threads...)
	c.mu.Unlock()

	total := 0
	for _, ti := range threads {
		total += ti.Deletes.Sweep(expired)
	}
	return total
}

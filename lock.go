package art

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
)

// nodeType identifies which of the four adaptive fan-out variants a node is.
// Packed into the top 2 bits of every node's version word, mirroring
// NTypes in original_source/src/include/index/art_node.h.
type nodeType uint8

const (
	typeNode4 nodeType = iota
	typeNode16
	typeNode48
	typeNode256
)

// lockWord is the packed 64-bit "type_version_lock_obsolete" atomic word
// every node carries: 2 bits type, 60 bits version, 1 bit locked, 1 bit
// obsolete. Exposed only through methods so the bit layout stays
// encapsulated, per spec.md §9.
type lockWord struct {
	v uint64
}

const (
	lockBit     uint64 = 0b10
	obsoleteBit uint64 = 0b01
	typeShift          = 62
)

func newLockWord(t nodeType) lockWord {
	// version starts at 1 (the low version bits begin at bit 2), unlocked,
	// not obsolete - matches type_version_lock_obsolete_{0b100} in the source.
	return lockWord{v: (uint64(t) << typeShift) | 0b100}
}

func (l *lockWord) load() uint64 { return atomic.LoadUint64(&l.v) }

func (l *lockWord) nodeType() nodeType {
	return nodeType(l.load() >> typeShift)
}

func isLocked(version uint64) bool { return version&lockBit == lockBit }

func isObsolete(version uint64) bool { return version&obsoleteBit == obsoleteBit }

// errRestart is the sentinel signaling the caller must retry the operation
// from the root. It carries no state; spec.md §4.2 requires the top-level
// operation to retry, never the inner helper.
var errRestart = errors.New("art: optimistic lock conflict, restart")

// readLockOrRestart samples the version word. A concurrently locked or
// obsolete node forces the caller to restart rather than read stale state.
func (l *lockWord) readLockOrRestart() (version uint64, err error) {
	version = l.load()
	if isLocked(version) || isObsolete(version) {
		return 0, errRestart
	}
	return version, nil
}

// readUnlockOrRestart revalidates that the node's version has not changed
// (and thus was not concurrently locked) since readLockOrRestart sampled it.
func (l *lockWord) readUnlockOrRestart(version uint64) error {
	if l.load() != version {
		return errRestart
	}
	return nil
}

// checkOrRestart is readUnlockOrRestart under a different name, used
// mid-descent before dereferencing a pointer read from the node, per
// spec.md §4.2.
func (l *lockWord) checkOrRestart(version uint64) error {
	return l.readUnlockOrRestart(version)
}

// upgradeToWriteLockOrRestart attempts to CAS the version word from the
// sampled read version to version+2 (setting the lock bit). Any
// intervening write (even one that nets the same logical state) fails
// the CAS and forces a restart.
func (l *lockWord) upgradeToWriteLockOrRestart(version uint64) error {
	if !atomic.CompareAndSwapUint64(&l.v, version, version+2) {
		return errRestart
	}
	return nil
}

// writeLockOrRestart combines readLockOrRestart and the upgrade, for call
// sites that go straight to a write lock without an intervening read
// section.
func (l *lockWord) writeLockOrRestart() (version uint64, err error) {
	version, err = l.readLockOrRestart()
	if err != nil {
		return 0, err
	}
	if err := l.upgradeToWriteLockOrRestart(version); err != nil {
		return 0, err
	}
	return version + 2, nil
}

// writeUnlock clears the lock bit and bumps the version, making the
// node's new state visible to optimistic readers.
func (l *lockWord) writeUnlock() { atomic.AddUint64(&l.v, 2) }

// writeUnlockObsolete clears the lock bit, bumps the version, and sets
// the obsolete bit in one step - used when a node has been replaced in
// the tree and any reader holding a pointer to it must restart instead
// of following it further.
func (l *lockWord) writeUnlockObsolete() { atomic.AddUint64(&l.v, 3) }

// spinBackoff implements the bounded spin-then-yield retry policy from
// spec.md §4.2: the first three attempts spin, later attempts yield the
// thread. Grounded on the teacher's
// `for atomic.LoadUint32(&mariInst.isResizing) == 1 { runtime.Gosched() }`
// retry idiom (IOUtils.go, Operation.go), generalized into a shared helper.
func spinBackoff(attempt int) {
	if attempt < 3 {
		for i := 0; i < 30*(attempt+1); i++ {
			// busy-spin: portable stand-in for _mm_pause, per spec.md §9.
		}
		return
	}
	runtime.Gosched()
}

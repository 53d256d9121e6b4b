// Package epoch implements the decentralized epoch manager from spec.md
// §4.1: a global monotonic epoch counter, per-thread participation
// records, and the commit-id encoding transactions use for MVCC
// visibility checks.
package epoch

// ID identifies a single epoch tick. The global ticker increments it
// roughly every tick interval given to New (see Manager); it never wraps within any
// realistic process lifetime.
type ID uint32

// CommitID packs an epoch ID and a per-epoch monotonic counter into one
// comparable 64-bit value, matching cid_t in
// original_source/src/include/concurrency/decentralized_epoch_manager.h:
// the high 32 bits are the epoch, the low 32 the in-epoch counter, so
// ordering by CommitID also orders by (epoch, counter).
type CommitID uint64

// NewCommitID packs epoch and counter into a CommitID.
func NewCommitID(e ID, counter uint32) CommitID {
	return CommitID(uint64(e)<<32 | uint64(counter))
}

// Epoch returns the epoch component of a CommitID.
func (c CommitID) Epoch() ID { return ID(c >> 32) }

// Counter returns the in-epoch counter component of a CommitID.
func (c CommitID) Counter() uint32 { return uint32(c) }

package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterPinsCurrentEpoch(t *testing.T) {
	mgr := New(time.Hour, nil)
	defer mgr.Close()

	l := mgr.Register()
	defer mgr.Unregister(l)

	cid, err := mgr.Enter(l, TimestampCommit)
	require.NoError(t, err)
	assert.Equal(t, mgr.Current(), cid.Epoch())
	assert.Equal(t, uint32(1), cid.Counter())
	assert.Equal(t, cid.Epoch(), mgr.ExpiredEpochID())

	mgr.Exit(l, cid)
}

func TestReadOnlyGetsZeroCounter(t *testing.T) {
	mgr := New(time.Hour, nil)
	defer mgr.Close()

	l := mgr.Register()
	defer mgr.Unregister(l)

	cid, err := mgr.Enter(l, TimestampRead)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), cid.Counter())
	mgr.Exit(l, cid)
}

func TestExpiredEpochIDHeldByRemainingThread(t *testing.T) {
	mgr := New(time.Hour, nil)
	defer mgr.Close()

	l1 := mgr.Register()
	l2 := mgr.Register()
	defer mgr.Unregister(l1)
	defer mgr.Unregister(l2)

	cid1, err := mgr.Enter(l1, TimestampCommit)
	require.NoError(t, err)
	_, err = mgr.Enter(l2, TimestampCommit)
	require.NoError(t, err)

	mgr.Exit(l1, cid1)
	assert.Equal(t, cid1.Epoch(), mgr.ExpiredEpochID())
}

func TestRegressedEpochRejectedUnlessSnapshot(t *testing.T) {
	mgr := New(time.Hour, nil)
	defer mgr.Close()

	l := mgr.Register()
	defer mgr.Unregister(l)

	cid, err := mgr.Enter(l, TimestampCommit)
	require.NoError(t, err)
	mgr.Exit(l, cid)

	_, err = mgr.Enter(l, TimestampRead)
	assert.ErrorIs(t, err, ErrEpochRegressed)

	_, err = mgr.Enter(l, TimestampSnapshotRead)
	assert.NoError(t, err)
}

func TestCommitIDRoundTrip(t *testing.T) {
	cid := NewCommitID(42, 7)
	assert.Equal(t, ID(42), cid.Epoch())
	assert.Equal(t, uint32(7), cid.Counter())
}

func TestEnterAfterCloseFails(t *testing.T) {
	mgr := New(time.Hour, nil)
	l := mgr.Register()

	mgr.Close()

	_, err := mgr.Enter(l, TimestampCommit)
	assert.ErrorIs(t, err, ErrClosed)
}

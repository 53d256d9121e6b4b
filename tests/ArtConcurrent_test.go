package arttests

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sirgallo/art"
)

// TestConcurrentInsertAndLookup mirrors the teacher's concurrent writer/
// reader goroutine split (MariConcurrent_test.go), adapted to the ART's
// Insert/Lookup instead of a disk-backed Put/Get, using errgroup to
// collect the first error across every goroutine instead of manual
// WaitGroups plus t.Errorf from inside each one.
func TestConcurrentInsertAndLookup(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	pairs := make([]KeyVal, InputSize)
	for i := range pairs {
		key, err := GenerateRandomBytes(24)
		require.NoError(t, err)
		tid := art.TID(i + 1)
		pairs[i] = KeyVal{Key: key, TID: tid}
		register(tid, key)
	}

	var wg errgroup.Group
	for i := 0; i < NumWriterGoroutines; i++ {
		chunk := pairs[i*WriteChunkSize : (i+1)*WriteChunkSize]
		wg.Go(func() error {
			for _, kv := range chunk {
				if err := tree.Insert(kv.Key, kv.TID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, wg.Wait())

	var rg errgroup.Group
	for i := 0; i < NumReaderGoroutines; i++ {
		chunk := pairs[i*ReadChunkSize : (i+1)*ReadChunkSize]
		rg.Go(func() error {
			for _, kv := range chunk {
				tid, found, err := tree.Lookup(kv.Key)
				if err != nil {
					return err
				}
				if !found || tid != kv.TID {
					return art.ErrNotFound
				}
			}
			return nil
		})
	}
	require.NoError(t, rg.Wait())
}

// TestConcurrentInsertAndRemove exercises the path collapse logic under
// concurrent writers, each removing every other key of its own chunk of
// the pre-inserted keys, then checks that the removed keys are gone.
// Grounded on MariConcurrent_test.go's mixed-operation run.
func TestConcurrentInsertAndRemove(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	const n = 20000
	pairs := make([]KeyVal, n)
	for i := range pairs {
		key, err := GenerateRandomBytes(24)
		require.NoError(t, err)
		tid := art.TID(i + 1)
		pairs[i] = KeyVal{Key: key, TID: tid}
		register(tid, key)
		require.NoError(t, tree.Insert(key, tid))
	}

	var g errgroup.Group
	for i := 0; i < NumWriterGoroutines; i++ {
		chunk := pairs[i*(n/NumWriterGoroutines) : (i+1)*(n/NumWriterGoroutines)]
		g.Go(func() error {
			for j, kv := range chunk {
				if j%2 == 0 {
					if err := tree.Remove(kv.Key, kv.TID); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i, kv := range pairs {
		_, found, err := tree.Lookup(kv.Key)
		require.NoError(t, err)
		if i%2 == 0 {
			require.False(t, found)
		}
	}
}

package arttests

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirgallo/art"
)

// newTestTree builds a Tree backed by an in-memory key registry, so the
// tree can resolve a TID back to its full key for the pessimistic prefix
// check and leaf verification in operation.go.
func newTestTree() (*art.Tree, func(art.TID, []byte)) {
	var mu sync.Mutex
	keys := make(map[art.TID][]byte)

	register := func(tid art.TID, key []byte) {
		mu.Lock()
		keys[tid] = append([]byte(nil), key...)
		mu.Unlock()
	}

	resolver := func(tid art.TID) []byte {
		mu.Lock()
		defer mu.Unlock()
		return keys[tid]
	}

	tree := art.New(art.WithKeyResolver(resolver))
	return tree, register
}

func TestInsertAndLookup(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	pairs := make([]KeyVal, 500)
	for i := range pairs {
		key, err := GenerateRandomBytes(24)
		require.NoError(t, err)
		tid := art.TID(i + 1)
		pairs[i] = KeyVal{Key: key, TID: tid}

		register(tid, key)
		require.NoError(t, tree.Insert(key, tid))
	}

	for _, p := range pairs {
		tid, found, err := tree.Lookup(p.Key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, p.TID, tid)
	}
}

func TestLookupMissingKey(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	present, err := GenerateRandomBytes(16)
	require.NoError(t, err)
	register(1, present)
	require.NoError(t, tree.Insert(present, 1))

	missing, err := GenerateRandomBytes(16)
	require.NoError(t, err)

	_, found, err := tree.Lookup(missing)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDuplicateKeyAccumulatesTIDs(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	key, err := GenerateRandomBytes(20)
	require.NoError(t, err)
	register(1, key)
	register(2, key)
	register(3, key)

	require.NoError(t, tree.Insert(key, 1))
	require.NoError(t, tree.Insert(key, 2))
	require.NoError(t, tree.Insert(key, 3))

	tids, err := tree.LookupAll(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []art.TID{1, 2, 3}, tids)
}

func TestRemove(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	key, err := GenerateRandomBytes(20)
	require.NoError(t, err)
	register(1, key)
	require.NoError(t, tree.Insert(key, 1))

	require.NoError(t, tree.Remove(key, 1))

	_, found, err := tree.Lookup(key)
	require.NoError(t, err)
	assert.False(t, found)

	err = tree.Remove(key, 1)
	assert.ErrorIs(t, err, art.ErrNotFound)
}

func TestLookupRangeReturnsSortedSubset(t *testing.T) {
	tree, register := newTestTree()
	defer tree.Close()

	var keys [][]byte
	for i := 0; i < 200; i++ {
		key, err := GenerateRandomBytes(8)
		require.NoError(t, err)
		tid := art.TID(i + 1)
		register(tid, key)
		require.NoError(t, tree.Insert(key, tid))
		keys = append(keys, key)
	}

	var visited [][]byte
	err := tree.LookupRange(context.Background(), nil, nil, func(key []byte, tid art.TID) bool {
		visited = append(visited, append([]byte(nil), key...))
		return true
	})
	require.NoError(t, err)
	assert.True(t, IsSorted(visited))
	assert.Len(t, visited, len(keys))
}

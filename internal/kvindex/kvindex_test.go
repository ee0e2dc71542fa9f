package kvindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.kvidx")

	w, err := Create(path)
	require.NoError(t, err)
	entries := map[uint64]string{
		1:   "a",
		5:   "bb",
		100: "ccc",
		500: "dddd",
	}
	for _, k := range []uint64{1, 5, 100, 500} {
		require.NoError(t, w.Put(k, []byte(entries[k])))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4, r.EntryCount())

	for k, v := range entries {
		got, ok := r.Get(k)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, v, string(got))
	}
	_, ok := r.Get(999)
	assert.False(t, ok)
}

func TestPutRejectsNonIncreasingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.kvidx")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Put(5, []byte("x")))
	assert.Error(t, w.Put(5, []byte("y")))
	assert.Error(t, w.Put(3, []byte("y")))
	require.NoError(t, w.Close())
}

func TestEachVisitsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.kvidx")
	w, err := Create(path)
	require.NoError(t, err)
	for _, k := range []uint64{2, 4, 6, 8} {
		require.NoError(t, w.Put(k, []byte{byte(k)}))
	}
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	var seen []uint64
	r.Each(func(k uint64, v []byte) bool {
		seen = append(seen, k)
		return true
	})
	assert.Equal(t, []uint64{2, 4, 6, 8}, seen)
}

package hsort

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rowWidth = 4

func keyOf(row []byte) int64 {
	return int64(binary.BigEndian.Uint32(row))
}

func buildTable(keys []uint32) []byte {
	out := make([]byte, len(keys)*rowWidth)
	for i, k := range keys {
		binary.BigEndian.PutUint32(out[i*rowWidth:], k)
	}
	return out
}

func keysOf(t []byte) []uint32 {
	var out []uint32
	for i := 0; i < len(t); i += rowWidth {
		out = append(out, binary.BigEndian.Uint32(t[i:i+4]))
	}
	return out
}

func TestSortInMemoryOrdersByKey(t *testing.T) {
	table := buildTable([]uint32{5, 1, 3, 2, 4})
	sorted, err := Sort(table, rowWidth, 5, keyOf)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, keysOf(sorted))
}

func TestSortExternalToFileOrdersByKey(t *testing.T) {
	table := buildTable([]uint32{9, 1, 5, 5, 2})
	path := filepath.Join(t.TempDir(), "sorted.bin")
	require.NoError(t, SortExternalToFile(table, rowWidth, 5, keyOf, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 5, 5, 9}, keysOf(data))
}

func TestSortDirectoryConcatenatesAndSorts(t *testing.T) {
	a := buildTable([]uint32{3, 1})
	b := buildTable([]uint32{2, 4})
	path := filepath.Join(t.TempDir(), "merged.bin")
	n, err := SortDirectory([][]byte{a, b}, rowWidth, keyOf, path)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4}, keysOf(data))
}

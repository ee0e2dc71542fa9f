package hci

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexImplicitBasicRanges(t *testing.T) {
	// 6 rows at pixels 0,0,2,2,2,5 (depth small enough NPix=12*1=12, depth 0)
	keys := []int64{0, 0, 2, 2, 2, 5}
	idx, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 1.0)
	require.NoError(t, err)
	assert.Equal(t, ShapeImplicit, idx.Shape)

	s, e := idx.Get(0)
	assert.Equal(t, int64(0), s)
	assert.Equal(t, int64(2), e)

	s, e = idx.Get(2)
	assert.Equal(t, int64(2), s)
	assert.Equal(t, int64(5), e)

	s, e = idx.Get(5)
	assert.Equal(t, int64(5), s)
	assert.Equal(t, int64(6), e)

	s, e = idx.Get(1)
	assert.Equal(t, int64(2), s)
	assert.Equal(t, int64(2), e)
}

func TestBuildIndexExplicitMatchesImplicit(t *testing.T) {
	keys := []int64{0, 0, 2, 2, 2, 5}
	explicit, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 0)
	require.NoError(t, err)
	assert.Equal(t, ShapeExplicit, explicit.Shape)

	implicit, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 1.0)
	require.NoError(t, err)

	for pix := int64(0); pix < 12; pix++ {
		s1, e1 := explicit.Get(pix)
		s2, e2 := implicit.Get(pix)
		assert.Equal(t, s2, s1, "pix %d start", pix)
		assert.Equal(t, e2, e1, "pix %d end", pix)
	}
}

func TestBuildIndexRejectsUnsortedInput(t *testing.T) {
	keys := []int64{2, 0, 1}
	_, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 1.0)
	assert.Error(t, err)
}

func TestGetCellNoncumulative(t *testing.T) {
	keys := []int64{0, 0, 2, 2, 2, 5}
	idx, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 1.0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, idx.GetCellNoncumulative(0))
	assert.EqualValues(t, 3, idx.GetCellNoncumulative(2))
	assert.EqualValues(t, 0, idx.GetCellNoncumulative(1))
}

func TestGetAtDepthRescalesToCoarserPixel(t *testing.T) {
	// Built at depth 2 (192 pixels) and queried at depths 1 and 0, both
	// coarser than the build depth.
	keys := []int64{0, 1, 2, 3, 4, 5, 6, 7}
	idx, err := BuildIndex(int64(len(keys)), 2, func(i int64) int64 { return keys[i] }, 1.0)
	require.NoError(t, err)

	// Depth-1 pixel 0 covers depth-2 pixels 0..3.
	s, e := idx.GetAtDepth(1, 0)
	assert.Equal(t, int64(0), s)
	assert.Equal(t, int64(4), e)
	assert.EqualValues(t, 4, idx.CountAtDepth(1, 0))

	// Depth-1 pixel 1 covers depth-2 pixels 4..7.
	s, e = idx.GetAtDepth(1, 1)
	assert.Equal(t, int64(4), s)
	assert.Equal(t, int64(8), e)

	// Depth-0 pixel 0 covers depth-2 pixels 0..15, i.e. all 8 rows here.
	assert.EqualValues(t, 8, idx.CountAtDepth(0, 0))
}

func TestImplicitOffsetsRoundTripThroughFromImplicitOffsets(t *testing.T) {
	keys := []int64{0, 0, 2, 2, 2, 5}
	idx, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 1.0)
	require.NoError(t, err)

	offsets := idx.ImplicitOffsets()
	require.NotNil(t, offsets)
	pixels, cumulative := idx.ExplicitEntries()
	assert.Nil(t, pixels)
	assert.Nil(t, cumulative)

	rebuilt := FromImplicitOffsets(idx.Depth, offsets)
	for pix := int64(0); pix < 12; pix++ {
		s1, e1 := idx.Get(pix)
		s2, e2 := rebuilt.Get(pix)
		assert.Equal(t, s1, s2, "pix %d start", pix)
		assert.Equal(t, e1, e2, "pix %d end", pix)
	}
	assert.Equal(t, idx.TotalRows(), rebuilt.TotalRows())
}

func TestExplicitEntriesRoundTripThroughFromExplicitEntries(t *testing.T) {
	keys := []int64{0, 0, 2, 2, 2, 5}
	idx, err := BuildIndex(int64(len(keys)), 0, func(i int64) int64 { return keys[i] }, 0)
	require.NoError(t, err)

	pixels, cumulative := idx.ExplicitEntries()
	require.NotEmpty(t, pixels)

	rebuilt := FromExplicitEntries(idx.Depth, pixels, cumulative)
	for pix := int64(0); pix < 12; pix++ {
		s1, e1 := idx.Get(pix)
		s2, e2 := rebuilt.Get(pix)
		assert.Equal(t, s1, s2, "pix %d start", pix)
		assert.Equal(t, e1, e2, "pix %d end", pix)
	}
}

func TestFingerprintDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	fp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, "data.bin", fp.Name)

	stale, err := fp.Stale(path)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))
	stale, err = fp.Stale(path)
	require.NoError(t, err)
	assert.True(t, stale)
}

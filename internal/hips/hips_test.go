package hips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-astro/fitscat/internal/healpix"
	"github.com/cds-astro/fitscat/internal/hci"
)

func TestUniqRoundTrips(t *testing.T) {
	cases := []struct {
		depth uint8
		pix   int64
	}{
		{0, 0}, {0, 11}, {1, 0}, {1, 47}, {2, 0}, {2, 191}, {5, 1000},
	}
	for _, c := range cases {
		u := Uniq(c.depth, c.pix)
		d, p := FromUniq(u)
		assert.Equal(t, c.depth, d, "depth for uniq(%d,%d)", c.depth, c.pix)
		assert.Equal(t, c.pix, p, "pix for uniq(%d,%d)", c.depth, c.pix)
	}
}

func TestUniqRangesDoNotOverlapAcrossDepths(t *testing.T) {
	maxDepth0 := Uniq(0, healpix.NPix(0)-1)
	minDepth1 := Uniq(1, 0)
	assert.Less(t, maxDepth0, minDepth1)
}

func TestDeriveN1N2ScalesByCoverage(t *testing.T) {
	p := Params{N1: 3000, R21: 3}
	n1, n2 := DeriveN1N2(p, 192) // full sky coverage
	assert.EqualValues(t, 3000, n1)
	assert.EqualValues(t, 9000, n2)

	n1Half, n2Half := DeriveN1N2(p, 96) // half-sky coverage
	assert.EqualValues(t, 1500, n1Half)
	assert.EqualValues(t, 4500, n2Half)
}

// buildUniformIndex spreads nRows evenly across the pixels at the given
// depth in increasing pixel order (nRows/NPix rows per pixel when nRows is
// a multiple of NPix), so every test has a predictable, sorted HCI shape.
func buildUniformIndex(t *testing.T, depth uint8, nRows int64) *hci.Index {
	idx, err := hci.BuildIndex(nRows, depth, func(i int64) int64 { return i * healpix.NPix(depth) / nRows }, 1.0)
	require.NoError(t, err)
	return idx
}

func TestBuilderAssignsEveryRowToSomeTile(t *testing.T) {
	const depth = 4
	nRows := healpix.NPix(depth) * 3 // 3 rows per pixel at depth 4
	idx := buildUniformIndex(t, depth, nRows)

	b := NewBuilder(idx, nil, Params{N1: 48, R21: 3, NTot: 2})
	tiles, mocMap, depthMax, err := b.Build()
	require.NoError(t, err)
	assert.NotEmpty(t, tiles)
	assert.LessOrEqual(t, depthMax, uint8(depth))

	var totalSelected int64
	for _, ts := range tiles {
		totalSelected += ts.SelectedCount
	}
	assert.Equal(t, nRows, totalSelected, "every row must be selected by exactly one tile")
	assert.Greater(t, mocMap.NPix(), int64(0))
}

func TestBuilderEmptyIndexProducesNoTiles(t *testing.T) {
	idx := buildUniformIndex(t, 2, 0)
	b := NewBuilder(idx, nil, Params{N1: 10, R21: 1, NTot: 5})
	tiles, _, depthMax, err := b.Build()
	require.NoError(t, err)
	assert.Empty(t, tiles)
	assert.Equal(t, uint8(0), depthMax)
}

func TestBuilderWithScorePrefersLowestScoreFirst(t *testing.T) {
	const depth = 3
	nRows := healpix.NPix(depth) * 5
	idx := buildUniformIndex(t, depth, nRows)

	score := func(recno int64) float64 { return float64(-recno) } // higher recno => lower score => "better"
	b := NewBuilder(idx, score, Params{N1: 12, R21: 1, NTot: 2})
	tiles, _, _, err := b.Build()
	require.NoError(t, err)

	var total int64
	for _, ts := range tiles {
		total += ts.SelectedCount
	}
	assert.Equal(t, nRows, total)

	for _, ts := range tiles {
		if ts.Depth == 1 {
			require.Len(t, ts.Rows, 1)
			assert.Equal(t, ts.CumulCount-1, ts.Rows[0], "depth-1 tile %d keeps its highest recno, the lowest score", ts.Pix)
		}
	}
}

func TestParamsValidateRejectsZeroNTot(t *testing.T) {
	p := Params{N1: 1, R21: 1, NTot: 0}
	assert.Error(t, p.Validate())
}

func TestCov3CountsNonEmptySubCellsThreeLevelsDeeper(t *testing.T) {
	const depth = 6 // depth 3 + 3, so cov3 reads the index at its native depth
	idx, err := hci.BuildIndex(10, depth, func(i int64) int64 { return 0 }, 1.0)
	require.NoError(t, err)
	b := NewBuilder(idx, nil, Params{NTot: 64})
	assert.EqualValues(t, 1, b.cov3(3, 0), "only depth-6 pixel 0 holds rows")
}

func TestCov3ScalesWhenIndexShallowerThanDepthPlus3(t *testing.T) {
	const depth = 4 // only one level deeper than the depth-3 query cell
	idx, err := hci.BuildIndex(4, depth, func(i int64) int64 { return i }, 1.0)
	require.NoError(t, err)
	b := NewBuilder(idx, nil, Params{NTot: 64})
	assert.EqualValues(t, 64, b.cov3(3, 0), "all 4 depth-4 children nonempty scales to full 64/64 coverage")
}

func TestRecurseScalesQuotaByCoverage(t *testing.T) {
	// A depth-7 catalog where only one quarter of the sky (under pixel 0 of
	// the 4 depth-3 children of depth-2 pixel 0) is populated; the other
	// three depth-3 siblings are empty. The populated cell's quota should
	// come out scaled by its own depth+3 coverage, not a flat NTot.
	const depth = 7
	npixAtDepth3 := healpix.NPix(3)
	var populatedPix int64 = 0 // depth-3 pixel 0, fully dense below it
	nRows := int64(1000)
	idx, err := hci.BuildIndex(nRows, depth, func(i int64) int64 {
		first, _ := healpix.ChildRange(populatedPix, 3, depth)
		return first + i*(healpix.NPix(depth)/npixAtDepth3)/nRows
	}, 1.0)
	require.NoError(t, err)

	b := NewBuilder(idx, nil, Params{N1: 1, R21: 1, NTot: 100})
	cov := b.cov3(3, populatedPix)
	assert.EqualValues(t, 64, cov, "fully dense cell covers all 64 depth-6 sub-cells")

	emptyCov := b.cov3(3, populatedPix+1)
	assert.EqualValues(t, 0, emptyCov, "sibling cell with no rows has zero coverage")
}

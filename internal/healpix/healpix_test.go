package healpix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNSideAndNPix(t *testing.T) {
	assert.EqualValues(t, 1, NSide(0))
	assert.EqualValues(t, 12, NPix(0))
	assert.EqualValues(t, 4, NSide(2))
	assert.EqualValues(t, 12*16, NPix(2))
}

func TestHashIsWithinRange(t *testing.T) {
	l := Get(10)
	for _, pos := range [][2]float64{
		{0, 0},
		{math.Pi, 0.3},
		{1.5 * math.Pi, -1.2},
		{0.01, math.Pi/2 - 0.001},
		{0.01, -math.Pi/2 + 0.001},
	} {
		h := l.Hash(pos[0], pos[1])
		assert.GreaterOrEqual(t, h, int64(0))
		assert.Less(t, h, l.NPix())
	}
}

func TestHashStableForSamePosition(t *testing.T) {
	l := Get(8)
	a := l.Hash(1.234, -0.456)
	b := l.Hash(1.234, -0.456)
	assert.Equal(t, a, b)
}

func TestCenterRoundTripsThroughHash(t *testing.T) {
	l := Get(4)
	for pix := int64(0); pix < l.NPix(); pix++ {
		lon, lat := l.Center(pix)
		got := l.Hash(lon, lat)
		assert.Equal(t, pix, got, "pix %d center (%f,%f) hashed back to %d", pix, lon, lat, got)
	}
}

func TestParentAtAndChildRange(t *testing.T) {
	first, last := ChildRange(5, 4, 6)
	for p := first; p < last; p++ {
		assert.EqualValues(t, 5, ParentAt(p, 6, 4))
	}
	assert.Equal(t, int64(16), last-first)
}

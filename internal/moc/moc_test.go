package moc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddMergesAdjacentRanges(t *testing.T) {
	m := New(5)
	m.Add(10, 20)
	m.Add(20, 30)
	m.Add(50, 60)
	assert.Equal(t, []Range{{10, 30}, {50, 60}}, m.Ranges)
	assert.EqualValues(t, 30, m.NPix())
}

func TestContains(t *testing.T) {
	m := New(5)
	m.Add(10, 20)
	assert.True(t, m.Contains(10))
	assert.True(t, m.Contains(19))
	assert.False(t, m.Contains(20))
	assert.False(t, m.Contains(9))
}

func TestUnion(t *testing.T) {
	a := New(5)
	a.Add(0, 10)
	b := New(5)
	b.Add(5, 15)
	u := a.Union(b)
	assert.Equal(t, []Range{{0, 15}}, u.Ranges)
}

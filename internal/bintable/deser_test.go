package bintable

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-astro/fitscat"
)

func TestDecodeRowCSVTwoIntegerRows(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "COL_0", Form: "1J"},
	}, 4)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	v := NewCSVVisitor()

	row1 := make([]byte, 4)
	fits.BigEndian.PutUint32(row1, 1)
	require.NoError(t, DecodeRow(schema, row1, nil, v))

	row2 := make([]byte, 4)
	fits.BigEndian.PutUint32(row2, 2)
	require.NoError(t, DecodeRow(schema, row2, nil, v))

	assert.Equal(t, "1\n2", v.Buf.String())
}

func TestDecodeRowUnsignedPromotionRecoversCanonicalValue(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "COUNT", Form: "1I", Zero: ptrF(32768)},
	}, 2)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 2)
	// Storage value 32767 (0x7FFF as signed int16) recovers to 65535 unsigned
	// via the canonical offset: unsigned = storage + 32768.
	fits.BigEndian.PutUint16(row, 0x7FFF)

	fv := NewFieldVisitor(1)
	require.NoError(t, DecodeRow(schema, row, nil, fv))
	assert.Equal(t, FieldU16, fv.Row[0].Kind)
	assert.EqualValues(t, 65535, fv.Row[0].U64)
}

func TestDecodeRowNullSentinelReportsOptIsNull(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "ID", Form: "1J", Null: ptrI(-999)},
	}, 4)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 4)
	fits.BigEndian.PutUint32(row, uint32(int32(-999)))

	fv := NewFieldVisitor(1)
	require.NoError(t, DecodeRow(schema, row, nil, fv))
	assert.Equal(t, FieldNull, fv.Row[0].Kind)
}

func TestDecodeRowFloatScaleZeroPromotion(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "TEMP", Form: "1J", Scale: ptrF(0.1), Zero: ptrF(273.15)},
	}, 4)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 4)
	fits.BigEndian.PutUint32(row, uint32(int32(1000)))

	fv := NewFieldVisitor(1)
	require.NoError(t, DecodeRow(schema, row, nil, fv))
	assert.Equal(t, FieldF64, fv.Row[0].Kind)
	assert.InDelta(t, 373.15, fv.Row[0].F64, 1e-9)
}

func TestDecodeRowHeapVariableLengthArray(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "SPEC", Form: "1PJ(4)"},
	}, 8)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	heap := make([]byte, 16)
	for i := 0; i < 4; i++ {
		fits.BigEndian.PutUint32(heap[i*4:i*4+4], uint32(i+10))
	}

	row := make([]byte, 8)
	fits.BigEndian.PutUint32(row[0:4], 4)
	fits.BigEndian.PutUint32(row[4:8], 0)

	fv := NewFieldVisitor(1)
	require.NoError(t, DecodeRow(schema, row, heap, fv))
	require.Equal(t, FieldI32Array, fv.Row[0].Kind)
	assert.Equal(t, []int32{10, 11, 12, 13}, fv.Row[0].I32Array)
}

func TestDecodeRowNaNSignalsNullForFloat(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "FLUX", Form: "1E"},
	}, 4)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 4)
	fits.BigEndian.PutUint32(row, math.Float32bits(float32(math.NaN())))

	fv := NewFieldVisitor(1)
	require.NoError(t, DecodeRow(schema, row, nil, fv))
	assert.Equal(t, FieldF32, fv.Row[0].Kind)
	assert.True(t, math.IsNaN(float64(fv.Row[0].F32)))
}

func TestDecodeRowRejectsWrongWidth(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "X", Form: "1J"},
	}, 4)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	err = DecodeRow(schema, make([]byte, 3), nil, NewFieldVisitor(1))
	assert.Error(t, err)
}

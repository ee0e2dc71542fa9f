package bintable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-astro/fitscat"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int64) *int64     { return &v }

func basicBinTableHeader(cols []fits.Column, rowWidth int64) *fits.Header {
	return &fits.Header{
		Class:       fits.ClassBinTable,
		RowByteSize: rowWidth,
		RowCount:    1,
		NFields:     len(cols),
		Columns:     cols,
	}
}

func TestBuildRowSchemaSimpleScalarColumns(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "FLAG", Form: "1L"},
		{Index: 2, Name: "MAG", Form: "1E"},
		{Index: 3, Name: "NAME", Form: "8A"},
	}, 1+4+8)

	schema, warnings, err := BuildRowSchema(h)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, schema.Fields, 3)

	assert.Equal(t, 0, schema.Fields[0].StartByte)
	assert.Equal(t, KindBool, schema.Fields[0].Storage)

	assert.Equal(t, 1, schema.Fields[1].StartByte)
	assert.Equal(t, KindF32, schema.Fields[1].Storage)

	assert.Equal(t, 5, schema.Fields[2].StartByte)
	assert.Equal(t, KindASCII, schema.Fields[2].Storage)
	assert.Equal(t, 8, schema.Fields[2].ASCIILen)

	assert.Equal(t, 13, schema.RowWidth)
}

func TestBuildRowSchemaUnsignedCanonicalOffsetPromotesToUint16(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "COUNT", Form: "1I", Scale: ptrF(1.0), Zero: ptrF(32768)},
	}, 2)

	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)
	fs := schema.Fields[0]
	assert.True(t, fs.IsUnsignedOffset)
	assert.Equal(t, KindU16, fs.Promoted)
}

func TestBuildRowSchemaNonCanonicalScaleZeroPromotesToFloat(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "TEMP", Form: "1J", Scale: ptrF(0.1), Zero: ptrF(273.15)},
	}, 4)

	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)
	fs := schema.Fields[0]
	assert.False(t, fs.IsUnsignedOffset)
	assert.Equal(t, KindF64, fs.Promoted)
	assert.InDelta(t, 0.1, fs.Scale, 1e-9)
	assert.InDelta(t, 273.15, fs.Zero, 1e-9)
}

func TestBuildRowSchemaTNULLOnlyAppliesToIntegerStorage(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "ID", Form: "1J", Null: ptrI(-999)},
		{Index: 2, Name: "VAL", Form: "1E", Null: ptrI(-999)},
	}, 8)

	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)
	assert.True(t, schema.Fields[0].Nullable)
	assert.EqualValues(t, -999, schema.Fields[0].NullSentinel)
	assert.False(t, schema.Fields[1].Nullable)
}

func TestBuildRowSchemaIgnoredModifierWarningForLogicalColumn(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "FLAG", Form: "1L", Scale: ptrF(2.0)},
	}, 1)

	_, warnings, err := BuildRowSchema(h)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "TSCAL/TZERO ignored")
}

func TestBuildRowSchemaVariableLengthHeapColumn(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "SPEC", Form: "1PE(100)"},
	}, 8)

	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)
	fs := schema.Fields[0]
	assert.True(t, fs.IsHeap)
	assert.Equal(t, 32, fs.HeapLenBits)
	assert.Equal(t, KindF32, fs.HeapElem)
	assert.Equal(t, 8, fs.StoredWidth)
}

func TestBuildRowSchemaRejectsRowWidthMismatch(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "X", Form: "1J"},
	}, 99)

	_, _, err := BuildRowSchema(h)
	assert.Error(t, err)
}

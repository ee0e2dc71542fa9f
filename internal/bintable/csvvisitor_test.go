package bintable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-astro/fitscat"
)

func TestCSVVisitorMultiColumnRow(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "ID", Form: "1J"},
		{Index: 2, Name: "NAME", Form: "4A"},
	}, 8)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 8)
	fits.BigEndian.PutUint32(row[0:4], 42)
	copy(row[4:8], "star")

	v := NewCSVVisitor()
	require.NoError(t, DecodeRow(schema, row, nil, v))
	assert.Equal(t, "42,star", v.Buf.String())
}

func TestCSVVisitorQuotesFieldsContainingComma(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "NAME", Form: "8A"},
	}, 8)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 8)
	copy(row, `a,"b"   `)

	v := NewCSVVisitor()
	require.NoError(t, DecodeRow(schema, row, nil, v))
	assert.Equal(t, `"a,""b""   "`, v.Buf.String())
}

func TestCSVVisitorArrayColumnBracketed(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "VEC", Form: "3J"},
	}, 12)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 12)
	fits.BigEndian.PutUint32(row[0:4], 1)
	fits.BigEndian.PutUint32(row[4:8], 2)
	fits.BigEndian.PutUint32(row[8:12], 3)

	v := NewCSVVisitor()
	require.NoError(t, DecodeRow(schema, row, nil, v))
	assert.Equal(t, "[1 2 3]", v.Buf.String())
}

func TestCSVVisitorNullOmitsValueKeepsColumn(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "A", Form: "1J", Null: ptrI(-1)},
		{Index: 2, Name: "B", Form: "1J"},
	}, 8)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 8)
	fits.BigEndian.PutUint32(row[0:4], uint32(int32(-1)))
	fits.BigEndian.PutUint32(row[4:8], 7)

	v := NewCSVVisitor()
	require.NoError(t, DecodeRow(schema, row, nil, v))
	assert.Equal(t, ",7", v.Buf.String())
}

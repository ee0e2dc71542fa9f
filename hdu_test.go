package fits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTrivialPrimaryHeader checks that a zero-NAXIS primary header has
// no data block, and that a following HDU begins at the very next
// 2880-byte boundary.
func TestParseTrivialPrimaryHeader(t *testing.T) {
	primary := buildHeaderBlock([]string{
		"SIMPLE  = T",
		"BITPIX  = 8",
		"NAXIS   = 0",
	})
	require.Len(t, primary, BlockSize)

	second := buildHeaderBlock([]string{
		"SIMPLE  = T",
		"BITPIX  = 8",
		"NAXIS   = 0",
	})

	data := append(append([]byte{}, primary...), second...)
	hdus, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, hdus, 2)

	assert.EqualValues(t, 0, hdus[0].Header.DataByteSize())
	assert.EqualValues(t, 0, hdus[0].Start)
	assert.EqualValues(t, BlockSize, hdus[1].Start)
}

func TestParseBinTableHeaderGeometry(t *testing.T) {
	primary := buildHeaderBlock([]string{
		"SIMPLE  = T",
		"BITPIX  = 8",
		"NAXIS   = 0",
	})
	bintable := buildHeaderBlock([]string{
		"XTENSION= 'BINTABLE'",
		"BITPIX  = 8",
		"NAXIS   = 2",
		"NAXIS1  = 4",
		"NAXIS2  = 2",
		"PCOUNT  = 0",
		"GCOUNT  = 1",
		"TFIELDS = 1",
		"TTYPE1  = 'COL_0'",
		"TFORM1  = '1J'",
	})
	body := make([]byte, 8) // 2 rows * 4 bytes
	BigEndian.PutUint32(body[0:4], 1)
	BigEndian.PutUint32(body[4:8], 2)
	body = append(body, zeroPad(len(body))...)

	data := append(append(append([]byte{}, primary...), bintable...), body...)
	hdus, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, hdus, 2)

	h := hdus[1].Header
	assert.Equal(t, ClassBinTable, h.Class)
	assert.EqualValues(t, 4, h.RowByteSize)
	assert.EqualValues(t, 2, h.RowCount)
	assert.EqualValues(t, 8, h.DataByteSize())
	require.Len(t, h.Columns, 1)
	assert.Equal(t, "COL_0", h.Columns[0].Name)
	assert.Equal(t, "1J", h.Columns[0].Form)
	assert.EqualValues(t, 1, BigEndian.Uint32(hdus[1].Data[0:4]))
	assert.EqualValues(t, 2, BigEndian.Uint32(hdus[1].Data[4:8]))
}

package fits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blankRecord() *Record {
	var r Record
	fillSpaces(&r)
	return &r
}

func TestWriteFixedStringRoundTrip(t *testing.T) {
	rec := blankRecord()
	require.NoError(t, WriteFixedString(rec, "TTYPE1", "FLUX", "flux density"))
	assert.Equal(t, "TTYPE1", rec.Name())
	assert.True(t, rec.HasValueIndicator())
	v, comment, err := ParseFixedString(rec.ValueComment())
	require.NoError(t, err)
	assert.Equal(t, "FLUX", v)
	assert.Equal(t, "flux density", comment)
}

func TestWriteFixedStringEscapesQuotes(t *testing.T) {
	rec := blankRecord()
	require.NoError(t, WriteFixedString(rec, "HISTORY", "it's", ""))
	v, _, err := ParseFixedString(rec.ValueComment())
	require.NoError(t, err)
	assert.Equal(t, "it's", v)
}

func TestWriteFixedIntRoundTrip(t *testing.T) {
	rec := blankRecord()
	require.NoError(t, WriteFixedInt(rec, "NAXIS1", 4096, ""))
	v, _, err := ParseFixedInt(rec.ValueComment())
	require.NoError(t, err)
	assert.EqualValues(t, 4096, v)
}

func TestWriteFixedLogicalRoundTrip(t *testing.T) {
	rec := blankRecord()
	require.NoError(t, WriteFixedLogical(rec, "SIMPLE", true, "conforms"))
	v, comment, err := ParseFixedLogical(rec.ValueComment())
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, "conforms", comment)
}

func TestParseFreeStringContinuation(t *testing.T) {
	var r1, r2 Record
	fillSpaces(&r1)
	fillSpaces(&r2)
	require.NoError(t, WriteFixedString(&r1, "LONGSTRN", "OGIP 1.0", ""))
	// simulate a continued string value ending in '&'
	require.NoError(t, WriteFixedString(&r1, "COMMENT1", "abc&", ""))
	require.NoError(t, WriteFixedString(&r2, "CONTINUE", "def", ""))

	v, _, err := ParseFixedString(r1.ValueComment())
	require.NoError(t, err)
	full, next, err := ReadContinuedString(v, []*Record{&r1, &r2}, 1)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", full)
	assert.Equal(t, 2, next)
}

func TestParseFreeIntAndReal(t *testing.T) {
	v, _, err := ParseFreeInt([]byte("    42  / the answer                                                "))
	require.NoError(t, err)
	assert.EqualValues(t, 42, v)

	f, _, err := ParseFreeReal([]byte(" 1.5D3 / scaled                                                      "))
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, f, 1e-9)
}

func TestParseHierarch(t *testing.T) {
	name, rest, err := ParseHierarch([]byte("ESO DET CHIP1 ID = 'a'                                              "))
	require.NoError(t, err)
	assert.Equal(t, "ESO DET CHIP1 ID", name)
	assert.Contains(t, string(rest), "'a'")
}

func TestIsEnd(t *testing.T) {
	rec := blankRecord()
	copy(rec[0:3], "END")
	assert.True(t, rec.IsEnd())
}

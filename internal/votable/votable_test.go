package votable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fits "github.com/cds-astro/fitscat"
)

const sample = `<?xml version="1.0"?>
<VOTABLE>
  <RESOURCE>
    <TABLE>
      <FIELD name="RAJ2000" datatype="double" unit="deg" ucd="pos.eq.ra;meta.main">
        <DESCRIPTION>Right ascension</DESCRIPTION>
      </FIELD>
      <FIELD name="DEJ2000" datatype="double" unit="deg" ucd="pos.eq.dec;meta.main"/>
    </TABLE>
  </RESOURCE>
</VOTABLE>`

func TestParseReadsFields(t *testing.T) {
	v, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, v.Resource.Table.Fields, 2)
	assert.Equal(t, "RAJ2000", v.Resource.Table.Fields[0].Name)
	assert.Equal(t, "pos.eq.ra;meta.main", v.Resource.Table.Fields[0].UCD)
	assert.Equal(t, "deg", v.Resource.Table.Fields[0].Unit)
	assert.Equal(t, "Right ascension", v.Resource.Table.Fields[0].Description)
}

func TestMergeIntoOverlaysMetadata(t *testing.T) {
	v, err := Parse([]byte(sample))
	require.NoError(t, err)

	cols := []fits.Column{
		{Index: 1, Name: "RAJ2000"},
		{Index: 2, Name: "DEJ2000", UCD: "existing.ucd"},
	}
	require.NoError(t, v.MergeInto(cols))

	assert.Equal(t, "pos.eq.ra;meta.main", cols[0].UCD)
	assert.Equal(t, "deg", cols[0].Unit)
	assert.Equal(t, "Right ascension", cols[0].Comm)
	assert.Equal(t, "pos.eq.dec;meta.main", cols[1].UCD)
}

func TestMergeIntoRejectsCountMismatch(t *testing.T) {
	v, err := Parse([]byte(sample))
	require.NoError(t, err)
	err = v.MergeInto([]fits.Column{{Index: 1, Name: "RAJ2000"}})
	assert.Error(t, err)
}

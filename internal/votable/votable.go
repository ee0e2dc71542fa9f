// Package votable parses the VOTable XML metadata document a FITS-plus
// primary HDU carries (VOTMETA=T) and merges its richer per-column
// metadata (UCD, unit, description) into a BINTABLE's Column
// slice, since plain FITS keywords can't carry everything VOTable does.
package votable

import (
	"encoding/xml"
	"fmt"

	"github.com/cds-astro/fitscat"
)

// VOTable is the minimal subset of the VOTable schema fitscat reads: one
// resource, one table, its fields in order.
type VOTable struct {
	XMLName  xml.Name `xml:"VOTABLE"`
	Resource struct {
		Table struct {
			Fields []Field `xml:"FIELD"`
		} `xml:"TABLE"`
	} `xml:"RESOURCE"`
}

// Field is one VOTable FIELD element's attributes.
type Field struct {
	Name     string `xml:"name,attr"`
	ID       string `xml:"ID,attr"`
	Datatype string `xml:"datatype,attr"`
	Unit     string `xml:"unit,attr"`
	UCD      string `xml:"ucd,attr"`
	Width    int    `xml:"width,attr"`
	Precision string `xml:"precision,attr"`
	Description string `xml:"DESCRIPTION"`
}

// Parse decodes a VOTable XML document.
func Parse(data []byte) (*VOTable, error) {
	var v VOTable
	if err := xml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("votable: parsing: %w", err)
	}
	return &v, nil
}

// MergeInto overlays this VOTable's per-field UCD/unit/description onto
// cols (a BINTABLE's Column slice), matching by position: VOTable FIELDs
// and BINTABLE TTYPEn columns are required to appear in the same order. A
// field whose own UCD/unit is empty leaves the BINTABLE's TUCD/TUNIT value
// untouched rather than clobbering it with nothing.
func (v *VOTable) MergeInto(cols []fits.Column) error {
	fields := v.Resource.Table.Fields
	if len(fields) != len(cols) {
		return fmt.Errorf("votable: field count %d does not match column count %d", len(fields), len(cols))
	}
	for i, f := range fields {
		if f.UCD != "" {
			cols[i].UCD = f.UCD
		}
		if f.Unit != "" {
			cols[i].Unit = f.Unit
		}
		if f.Description != "" {
			cols[i].Comm = f.Description
		}
	}
	return nil
}

// Package moc implements a minimal range-MOC (Multi-Order Coverage map):
// a sorted, merged list of [start, end) nested-scheme pixel ranges at a
// fixed depth, used by the HiPS builder to record which sky cells a
// collection actually covers.
//
// No MOC library ships in this module's dependency set (see DESIGN.md), so
// this is a from-scratch implementation of the range-set algebra the
// builder needs: insertion, union, and containment queries.
package moc

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cds-astro/fitscat"
)

// Range is a half-open interval [Start, End) of nested-scheme pixel indices
// at a fixed depth.
type Range struct {
	Start, End int64
}

// MOC is a depth-tagged, sorted, non-overlapping set of pixel ranges.
type MOC struct {
	Depth  uint8
	Ranges []Range
}

// New returns an empty coverage map at depth.
func New(depth uint8) *MOC {
	return &MOC{Depth: depth}
}

// Add inserts [start, end) and re-merges adjacent/overlapping ranges.
func (m *MOC) Add(start, end int64) {
	if start >= end {
		return
	}
	m.Ranges = append(m.Ranges, Range{start, end})
	m.normalize()
}

// AddPixel inserts a single pixel index.
func (m *MOC) AddPixel(pix int64) {
	m.Add(pix, pix+1)
}

func (m *MOC) normalize() {
	sort.Slice(m.Ranges, func(i, j int) bool { return m.Ranges[i].Start < m.Ranges[j].Start })
	merged := m.Ranges[:0:0]
	for _, r := range m.Ranges {
		if len(merged) > 0 && r.Start <= merged[len(merged)-1].End {
			if r.End > merged[len(merged)-1].End {
				merged[len(merged)-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	m.Ranges = merged
}

// Contains reports whether pix falls inside any recorded range.
func (m *MOC) Contains(pix int64) bool {
	i := sort.Search(len(m.Ranges), func(i int) bool { return m.Ranges[i].End > pix })
	return i < len(m.Ranges) && m.Ranges[i].Start <= pix
}

// NPix returns the total number of pixels covered.
func (m *MOC) NPix() int64 {
	var n int64
	for _, r := range m.Ranges {
		n += r.End - r.Start
	}
	return n
}

// Union returns a new MOC covering the union of m and other. Both must
// share the same Depth.
func (m *MOC) Union(other *MOC) *MOC {
	out := &MOC{Depth: m.Depth}
	out.Ranges = append(out.Ranges, m.Ranges...)
	out.Ranges = append(out.Ranges, other.Ranges...)
	out.normalize()
	return out
}

// ReadFile loads a MOC written in this package's own range encoding (the
// RANGE_START/RANGE_END BINTABLE with a MOC_DPTH keyword that the HiPS
// builder's moc.fits output uses), the "HEALPix MOC" region query input.
func ReadFile(path string) (*MOC, error) {
	mf, hdus, err := fits.OpenAndParse(path)
	if err != nil {
		return nil, err
	}
	defer mf.Close()
	if len(hdus) < 2 || !hdus[1].IsBinTable() {
		return nil, fmt.Errorf("moc: %s is not a valid MOC file", path)
	}
	table := hdus[1]

	var depth int64
	found := false
	for _, rec := range table.Records {
		if rec.Name() == "MOC_DPTH" {
			v, _, err := fits.ParseFixedInt(rec.ValueComment())
			if err != nil {
				return nil, fmt.Errorf("moc: parsing MOC_DPTH in %s: %w", path, err)
			}
			depth, found = v, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("moc: %s missing MOC_DPTH keyword", path)
	}

	n := len(table.Data) / 16
	m := &MOC{Depth: uint8(depth), Ranges: make([]Range, n)}
	for i := 0; i < n; i++ {
		start := int64(binary.BigEndian.Uint64(table.Data[i*16:]))
		end := int64(binary.BigEndian.Uint64(table.Data[i*16+8:]))
		m.Ranges[i] = Range{Start: start, End: end}
	}
	m.normalize()
	return m, nil
}

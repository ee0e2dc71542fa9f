// Copyright 2014 Shahriar Iravanian (siravan@svtsim.com).  All rights reserved.
// Use of this source code is governed by a MIT license that can be found in the LICENSE file.

package fits

import (
	"fmt"
	"strconv"
	"strings"
)

// Class identifies which of the five header variants a Header represents.
type Class int

const (
	ClassPrimary Class = iota
	ClassImage
	ClassAsciiTable
	ClassBinTable
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassPrimary:
		return "PRIMARY"
	case ClassImage:
		return "IMAGE"
	case ClassAsciiTable:
		return "TABLE"
	case ClassBinTable:
		return "BINTABLE"
	default:
		return "UNKNOWN"
	}
}

// Column is the set of optional per-column keywords a BINTABLE or ASCII
// TABLE header may carry, keyed by the mandatory TFORM.
type Column struct {
	Index int // 1-based TFORMn suffix
	Name  string
	Form  string // raw TFORM value, e.g. "1J", "3PE(12)"
	Unit  string
	UCD   string
	Comm  string // TCOMM / description
	Null  *int64
	Scale *float64
	Zero  *float64
	Dim   []int // parsed TDIM shape, slowest-varying first as stored
	Disp  string
	Min   *float64
	Max   *float64
	// TBCOL, ASCII tables only: 1-based starting column of the field.
	TBCol int
}

// Header is a typed view over one HDU's keyword records. Keys retains every
// parsed keyword/value pair (including vendor extensions and FITS-plus
// VOTMETA/NTABLE) alongside the flat Keys map; the typed fields
// below are convenience projections used by the rest of the toolkit.
type Header struct {
	Keys  map[string]interface{}
	Class Class

	Naxis  []int64 // NAXISn, len(Naxis) == NAXIS
	Bitpix int

	// BINTABLE / ASCII TABLE mandatory geometry.
	RowByteSize int64 // NAXIS1
	RowCount    int64 // NAXIS2
	HeapSize    int64 // PCOUNT
	GCount      int64
	NFields     int
	HeapOffset  int64 // THEAP, defaults to RowByteSize*RowCount

	Columns []Column

	XTension string // raw XTENSION value for extensions

	// FITS-plus: primary HDU whose data block is a VOTable XML document.
	IsVotMeta bool
	NTable    int
}

// DataByteSize returns the exact data-block byte length implied by this
// header. Callers pad the result up to the
// next 2880-byte multiple.
func (h *Header) DataByteSize() int64 {
	switch h.Class {
	case ClassPrimary, ClassImage:
		if len(h.Naxis) == 0 {
			return 0
		}
		n := int64(1)
		for _, a := range h.Naxis {
			n *= a
		}
		return int64(absInt(h.Bitpix)) / 8 * n
	case ClassAsciiTable:
		return h.RowByteSize * h.RowCount
	case ClassBinTable:
		return h.RowByteSize*h.RowCount + h.HeapSize
	default: // unknown extension
		n := int64(1)
		for _, a := range h.Naxis {
			n *= a
		}
		return int64(absInt(h.Bitpix)) / 8 * h.GCount * (h.HeapSize + n)
	}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// HeapByteOffset returns the byte offset of the heap region relative to the
// start of the data block, defaulting to RowByteSize*RowCount when THEAP was
// absent.
func (h *Header) HeapByteOffset() int64 {
	if h.HeapOffset != 0 {
		return h.HeapOffset
	}
	return h.RowByteSize * h.RowCount
}

// parseHeader consumes keyword records starting at recs[0] and returns the
// typed Header plus the number of records consumed (through and including
// END). Mandatory prefixes are validated in the fixed order the standard
// requires; a second pass over the remaining records populates optional
// per-column and vendor-extension keys.
func parseHeader(recs []*Record) (*Header, int, error) {
	h := &Header{Keys: make(map[string]interface{}, 64)}

	first := recs[0]
	switch first.Name() {
	case "SIMPLE":
		h.Class = ClassPrimary
		v, _, err := ParseFixedLogical(first.ValueComment())
		if err != nil {
			return nil, 0, newParseError("SIMPLE", err)
		}
		h.Keys["SIMPLE"] = v
	case "XTENSION":
		v, _, err := ParseFixedString(first.ValueComment())
		if err != nil {
			return nil, 0, newParseError("XTENSION", err)
		}
		h.XTension = strings.TrimSpace(v)
		h.Keys["XTENSION"] = h.XTension
		switch h.XTension {
		case "IMAGE":
			h.Class = ClassImage
		case "TABLE":
			h.Class = ClassAsciiTable
		case "BINTABLE":
			h.Class = ClassBinTable
		default:
			h.Class = ClassUnknown
		}
	default:
		return nil, 0, newParseError("header", fmt.Errorf("unexpected first keyword %q (want SIMPLE or XTENSION)", first.Name()))
	}

	i := 1
	readInt := func(name string) (int64, error) {
		if i >= len(recs) {
			return 0, newParseError(name, errEmptyValue)
		}
		r := recs[i]
		if r.Name() != name {
			return 0, newParseError(name, errWrongKeyword)
		}
		v, _, err := ParseFixedInt(r.ValueComment())
		if err != nil {
			return 0, newParseError(name, err)
		}
		h.Keys[name] = v
		i++
		return v, nil
	}

	bitpix, err := readInt("BITPIX")
	if err != nil {
		return nil, 0, err
	}
	h.Bitpix = int(bitpix)

	naxis, err := readInt("NAXIS")
	if err != nil {
		return nil, 0, err
	}
	h.Naxis = make([]int64, naxis)
	for k := int64(0); k < naxis; k++ {
		v, err := readInt(Nth("NAXIS", int(k+1)))
		if err != nil {
			return nil, 0, err
		}
		h.Naxis[k] = v
	}

	switch h.Class {
	case ClassAsciiTable, ClassBinTable, ClassUnknown, ClassImage:
		if h.Class != ClassPrimary {
			pcount, err := readInt("PCOUNT")
			if err != nil {
				return nil, 0, err
			}
			h.HeapSize = pcount
			gcount, err := readInt("GCOUNT")
			if err != nil {
				return nil, 0, err
			}
			h.GCount = gcount
		}
	}

	if h.Class == ClassAsciiTable || h.Class == ClassBinTable {
		if len(h.Naxis) != 2 {
			return nil, 0, newSemanticError("TABLE/BINTABLE header must have NAXIS=2, got %d", len(h.Naxis))
		}
		h.RowByteSize = h.Naxis[0]
		h.RowCount = h.Naxis[1]
		tfields, err := readInt("TFIELDS")
		if err != nil {
			return nil, 0, err
		}
		h.NFields = int(tfields)
		h.Columns = make([]Column, h.NFields)
		for k := range h.Columns {
			h.Columns[k].Index = k + 1
		}
	}

	// Second pass: scan remaining records up to END, populating per-column
	// and miscellaneous optional keywords. Per the documented open question,
	// a keyword seen twice (e.g. via a malformed producer) overwrites rather
	// than being rejected, since the scan clearly intends to keep the last
	// value seen.
	for ; i < len(recs); i++ {
		r := recs[i]
		if r.IsEnd() {
			i++
			break
		}
		name := r.Name()
		if name == "" || name == "COMMENT" || name == "HISTORY" || !r.HasValueIndicator() {
			continue
		}
		if err := h.applyOptional(name, r); err != nil {
			return nil, 0, err.(*ParseError).WithContext(fmt.Sprintf("record %d", i))
		}
	}

	if h.Class == ClassBinTable {
		if theap, ok := h.Keys["THEAP"]; ok {
			h.HeapOffset = theap.(int64)
		}
	}

	return h, i, nil
}

// applyOptional dispatches a single optional keyword record into Header.Keys
// and, for per-column keywords, into the matching Column entry.
func (h *Header) applyOptional(name string, r *Record) error {
	switch {
	case name == "VOTMETA":
		v, _, err := ParseFixedLogical(r.ValueComment())
		if err != nil {
			return newParseError("VOTMETA", err)
		}
		h.IsVotMeta = v
		h.Keys["VOTMETA"] = v
		return nil
	case name == "NTABLE":
		v, _, err := ParseFixedInt(r.ValueComment())
		if err != nil {
			return newParseError("NTABLE", err)
		}
		h.NTable = int(v)
		h.Keys["NTABLE"] = v
		return nil
	case name == "THEAP":
		v, _, err := ParseFixedInt(r.ValueComment())
		if err != nil {
			return newParseError("THEAP", err)
		}
		h.Keys["THEAP"] = v
		return nil
	}

	prefix, idx, ok := splitColumnKeyword(name)
	if !ok {
		// Vendor/unknown keyword: best-effort decode into Keys for
		// completeness, ignoring parse failures (e.g. comment-only rows).
		if v, _, err := ParseFreeInt(r.ValueComment()); err == nil {
			h.Keys[name] = v
			return nil
		}
		if v, _, err := ParseFreeReal(r.ValueComment()); err == nil {
			h.Keys[name] = v
			return nil
		}
		if v, rest, err := ParseFreeString(r.ValueComment()); err == nil {
			_ = rest
			h.Keys[name] = v
			return nil
		}
		if v, _, err := ParseFreeLogical(r.ValueComment()); err == nil {
			h.Keys[name] = v
			return nil
		}
		return nil
	}
	if idx < 1 || idx > len(h.Columns) {
		return newSemanticError("column index %d out of range for keyword %s", idx, name)
	}
	col := &h.Columns[idx-1]
	switch prefix {
	case "TTYPE":
		v, _, err := ParseFreeString(r.ValueComment())
		if err != nil {
			v2, _, err2 := ParseFixedString(r.ValueComment())
			if err2 != nil {
				return newParseError(name, err)
			}
			v = v2
		}
		col.Name = v
		h.Keys[name] = v
		h.Keys["#"+v] = idx
	case "TFORM":
		v, _, err := ParseFreeString(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.Form = v
		h.Keys[name] = v
	case "TUNIT":
		v, _, _ := ParseFreeString(r.ValueComment())
		col.Unit = v
		h.Keys[name] = v
	case "TUCD":
		v, _, _ := ParseFreeString(r.ValueComment())
		col.UCD = v
		h.Keys[name] = v
	case "TCOMM":
		v, _, _ := ParseFreeString(r.ValueComment())
		col.Comm = v
		h.Keys[name] = v
	case "TNULL":
		v, _, err := ParseFreeInt(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.Null = &v
		h.Keys[name] = v
	case "TSCAL":
		v, _, err := ParseFreeReal(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.Scale = &v
		h.Keys[name] = v
	case "TZERO":
		v, _, err := ParseFreeReal(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.Zero = &v
		h.Keys[name] = v
	case "TDIM":
		v, _, err := ParseFreeString(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		dims, perr := parseTDIM(v)
		if perr != nil {
			return newParseError(name, perr)
		}
		col.Dim = dims
		h.Keys[name] = v
	case "TDISP":
		v, _, _ := ParseFreeString(r.ValueComment())
		col.Disp = v
		h.Keys[name] = v
	case "TDMIN":
		v, _, err := ParseFreeReal(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.Min = &v
		h.Keys[name] = v
	case "TDMAX":
		v, _, err := ParseFreeReal(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.Max = &v
		h.Keys[name] = v
	case "TBCOL":
		v, _, err := ParseFreeInt(r.ValueComment())
		if err != nil {
			return newParseError(name, err)
		}
		col.TBCol = int(v)
		h.Keys[name] = v
	}
	return nil
}

// splitColumnKeyword splits a keyword like "TFORM12" into ("TFORM", 12).
func splitColumnKeyword(name string) (prefix string, idx int, ok bool) {
	for _, p := range []string{"TTYPE", "TFORM", "TUNIT", "TUCD", "TCOMM", "TNULL", "TSCAL", "TZERO", "TDIM", "TDISP", "TDMIN", "TDMAX", "TBCOL"} {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			n, err := strconv.Atoi(name[len(p):])
			if err == nil && n >= 1 {
				return p, n, true
			}
		}
	}
	return "", 0, false
}

// parseTDIM parses a TDIM value of the form "(n1,n2,...)".
func parseTDIM(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil, fmt.Errorf("empty TDIM value")
	}
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid TDIM component %q: %w", p, err)
		}
		dims[i] = n
	}
	return dims, nil
}

// Nth concatenates prefix and n, e.g. Nth("NAXIS", 1) == "NAXIS1".
func Nth(prefix string, n int) string {
	return fmt.Sprintf("%s%d", prefix, n)
}

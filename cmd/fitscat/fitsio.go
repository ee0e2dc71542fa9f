package main

import (
	"fmt"
	"math"
	"os"

	"github.com/cds-astro/fitscat"
	"github.com/cds-astro/fitscat/internal/bintable"
	"github.com/cds-astro/fitscat/internal/healpix"
)

// openTable maps path, parses its HDUs, and returns the primary HDU, the
// first BINTABLE HDU (by hduIndex, or the first one found when hduIndex is
// negative), and the row schema built from its header.
func openTable(path string, hduIndex int) (mf *fits.MappedFile, primary, table *fits.HDU, schema *bintable.RowSchema, err error) {
	mf, hdus, err := fits.OpenAndParse(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(hdus) == 0 {
		mf.Close()
		return nil, nil, nil, nil, fmt.Errorf("fitscat: %s contains no HDUs", path)
	}
	primary = hdus[0]

	table, err = pickBinTable(hdus, hduIndex)
	if err != nil {
		mf.Close()
		return nil, nil, nil, nil, err
	}
	schema, _, err = bintable.BuildRowSchema(table.Header)
	if err != nil {
		mf.Close()
		return nil, nil, nil, nil, fmt.Errorf("fitscat: building row schema for %s: %w", path, err)
	}
	return mf, primary, table, schema, nil
}

// pickBinTable selects the HDU at hduIndex if it is a BINTABLE (hduIndex
// >= 0), or the first BINTABLE extension found (hduIndex < 0).
func pickBinTable(hdus []*fits.HDU, hduIndex int) (*fits.HDU, error) {
	if hduIndex >= 0 {
		if hduIndex >= len(hdus) {
			return nil, fmt.Errorf("fitscat: HDU index %d out of range (file has %d HDUs)", hduIndex, len(hdus))
		}
		h := hdus[hduIndex]
		if !h.IsBinTable() {
			return nil, fmt.Errorf("fitscat: HDU %d is not a BINTABLE (got %s)", hduIndex, h.Header.Class)
		}
		return h, nil
	}
	for _, h := range hdus {
		if h.IsBinTable() {
			return h, nil
		}
	}
	return nil, fmt.Errorf("fitscat: no BINTABLE extension found")
}

// mainAndHeap splits a BINTABLE HDU's data slice into the fixed-width main
// table and the variable-length heap, per its header's PCOUNT/THEAP.
func mainAndHeap(table *fits.HDU) (main, heap []byte) {
	h := table.Header
	tableBytes := h.RowByteSize * h.RowCount
	main = table.Data[:tableBytes]
	heapStart := h.HeapByteOffset()
	if heapStart < tableBytes {
		heapStart = tableBytes
	}
	if heapStart < int64(len(table.Data)) {
		heap = table.Data[heapStart:]
	}
	return main, heap
}

// colNames returns the TTYPE value of every schema field, in column order,
// for a CSV/TSV header line.
func colNames(schema *bintable.RowSchema) []string {
	names := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		names[i] = f.Name
	}
	return names
}

// hduHeaderBytes returns one HDU's raw header block(s) (the bytes between
// its Start and DataStart offsets within the file data was mapped from).
func hduHeaderBytes(data []byte, hdu *fits.HDU) []byte {
	return data[hdu.Start:hdu.DataStart]
}

// verbatimHDU returns one HDU's entire on-disk span (header, data, and its
// block-padding), unmodified — the shape every derived output file copies
// its primary HDU from.
func verbatimHDU(data []byte, hdu *fits.HDU) []byte {
	out := make([]byte, 0, len(hdu.Data)+hdu.DataStart-hdu.Start+int(fits.BlockSize))
	out = append(out, data[hdu.Start:hdu.DataStart]...)
	out = append(out, hdu.Data...)
	out = append(out, zeroPad(int64(len(hdu.Data)))...)
	return out
}

// headerBuilder accumulates fixed-format keyword records and renders them,
// terminated by END, padded with blank records to the next 2880-byte block
// boundary — the same grammar fits.Header itself parses.
type headerBuilder struct {
	records []fits.Record
}

func newHeaderBuilder() *headerBuilder { return &headerBuilder{} }

func (b *headerBuilder) blank() *fits.Record {
	var r fits.Record
	for i := range r {
		r[i] = ' '
	}
	b.records = append(b.records, r)
	return &b.records[len(b.records)-1]
}

func (b *headerBuilder) String(keyword, value, comment string) *headerBuilder {
	_ = fits.WriteFixedString(b.blank(), keyword, value, comment)
	return b
}

func (b *headerBuilder) Int(keyword string, value int64, comment string) *headerBuilder {
	_ = fits.WriteFixedInt(b.blank(), keyword, value, comment)
	return b
}

func (b *headerBuilder) Logical(keyword string, value bool, comment string) *headerBuilder {
	_ = fits.WriteFixedLogical(b.blank(), keyword, value, comment)
	return b
}

func (b *headerBuilder) Real(keyword string, value float64, sigDigits int, comment string) *headerBuilder {
	_ = fits.WriteFixedReal(b.blank(), keyword, value, sigDigits, comment)
	return b
}

// Bytes renders the accumulated records, appends END, and pads with blank
// records to the next block boundary.
func (b *headerBuilder) Bytes() []byte {
	end := b.blank()
	copy(end[0:3], "END")

	out := make([]byte, 0, len(b.records)*fits.RecordSize)
	for i := range b.records {
		out = append(out, b.records[i][:]...)
	}
	if rem := len(out) % fits.BlockSize; rem != 0 {
		pad := make([]byte, fits.BlockSize-rem)
		for i := range pad {
			pad[i] = ' '
		}
		out = append(out, pad...)
	}
	return out
}

// minimalPrimaryHeader renders the smallest valid primary header: no data,
// used when a command emits a file with no meaningful image content of its
// own (the HCI index file, the HiPS moc.fits coverage file).
func minimalPrimaryHeader() []byte {
	return newHeaderBuilder().
		Logical("SIMPLE", true, "conforms to FITS standard").
		Int("BITPIX", 8, "").
		Int("NAXIS", 0, "").
		Bytes()
}

// zeroPad returns the zero-byte padding needed to bring n up to the next
// 2880-byte block boundary.
func zeroPad(n int64) []byte {
	rem := n % fits.BlockSize
	if rem == 0 {
		return nil
	}
	return make([]byte, fits.BlockSize-rem)
}

// writeAll concatenates chunks and writes them to path in one Write call
// per chunk, truncating any existing file.
func writeAll(path string, chunks ...[]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fitscat: creating %s: %w", path, err)
	}
	defer f.Close()
	for _, c := range chunks {
		if len(c) == 0 {
			continue
		}
		if _, err := f.Write(c); err != nil {
			return fmt.Errorf("fitscat: writing %s: %w", path, err)
		}
	}
	return nil
}

// recordsToBytes flattens a block-aligned sequence of header records back
// into bytes, after an in-place keyword rewrite (e.g. hsort.RewriteNAXIS2).
func recordsToBytes(records [][80]byte) []byte {
	out := make([]byte, 0, len(records)*fits.RecordSize)
	for _, r := range records {
		out = append(out, r[:]...)
	}
	return out
}

// fieldIndex returns the position of the named column in schema, matched
// case-insensitively against TTYPE, as the --lon/--lat flags of sort and
// mkidx and the --score flag of mkhips accept.
func fieldIndex(schema *bintable.RowSchema, name string) (int, error) {
	for i, f := range schema.Fields {
		if strEqualFold(f.Name, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("fitscat: column %q not found in schema", name)
}

func strEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// rowAt slices the rowIdx'th fixed-width row out of a BINTABLE's main
// table.
func rowAt(main []byte, rowWidth int, rowIdx int64) []byte {
	start := rowIdx * int64(rowWidth)
	return main[start : start+int64(rowWidth)]
}

// healpixKeyer decodes a row's longitude/latitude columns and returns its
// nested-scheme HEALPix pixel index at depth, the sort/index key shared by
// the sort, mkidx and mkhips subcommands.
type healpixKeyer struct {
	schema        *bintable.RowSchema
	heap          []byte
	lonIdx, latIdx int
	degrees       bool
	depth         uint8
	fv            *bintable.FieldVisitor
}

func newHealpixKeyer(schema *bintable.RowSchema, heap []byte, lonName, latName string, degrees bool, depth uint8) (*healpixKeyer, error) {
	lonIdx, err := fieldIndex(schema, lonName)
	if err != nil {
		return nil, err
	}
	latIdx, err := fieldIndex(schema, latName)
	if err != nil {
		return nil, err
	}
	return &healpixKeyer{
		schema: schema, heap: heap, lonIdx: lonIdx, latIdx: latIdx,
		degrees: degrees, depth: depth,
		fv: bintable.NewFieldVisitor(len(schema.Fields)),
	}, nil
}

// LonLat decodes one row's coordinates, in radians.
func (k *healpixKeyer) LonLat(row []byte) (lonRad, latRad float64, err error) {
	if err := bintable.DecodeRow(k.schema, row, k.heap, k.fv); err != nil {
		return 0, 0, err
	}
	lon := fieldFloat(k.fv.Row[k.lonIdx])
	lat := fieldFloat(k.fv.Row[k.latIdx])
	if k.degrees {
		lon *= math.Pi / 180.0
		lat *= math.Pi / 180.0
	}
	return lon, lat, nil
}

// Hash returns the nested-scheme pixel index of row at k.depth, or -1 if
// its position is unavailable (NaN coordinates).
func (k *healpixKeyer) Hash(row []byte) int64 {
	lon, lat, err := k.LonLat(row)
	if err != nil || math.IsNaN(lon) || math.IsNaN(lat) {
		return -1
	}
	return healpix.Get(k.depth).Hash(lon, lat)
}

// RowKeyFunc adapts Hash to hsort.KeyFunc.
func (k *healpixKeyer) RowKeyFunc() func(row []byte) int64 {
	return k.Hash
}

// IndexKeyFunc adapts Hash to hci.BuildIndex's row-index-based KeyFunc,
// given the main table and its row width.
func (k *healpixKeyer) IndexKeyFunc(main []byte, rowWidth int) func(rowIdx int64) int64 {
	return func(rowIdx int64) int64 {
		return k.Hash(rowAt(main, rowWidth, rowIdx))
	}
}

// fieldFloat extracts a float64 from a decoded bintable.Field, for columns
// used as HEALPix longitude/latitude or as a sort/score key. Returns NaN
// for kinds with no numeric interpretation.
func fieldFloat(f bintable.Field) float64 {
	switch f.Kind {
	case bintable.FieldF64:
		return f.F64
	case bintable.FieldF32:
		return float64(f.F32)
	case bintable.FieldI16, bintable.FieldI32, bintable.FieldI64:
		return float64(f.I64)
	case bintable.FieldU8, bintable.FieldU16, bintable.FieldU32, bintable.FieldU64:
		return float64(f.U64)
	default:
		return math.NaN()
	}
}

// Package hsort reorders a BINTABLE's rows into increasing HEALPix-index
// order, the prerequisite for the cumulative index (internal/hci) and
// spatial range queries (internal/region). Variable-length array data in
// the heap is untouched by a sort: row reordering only permutes the fixed-
// width main table, and heap descriptors remain byte offsets into a heap
// region that never moves.
package hsort

import (
	"fmt"
	"os"
	"sort"

	"github.com/cds-astro/fitscat"
)

// KeyFunc extracts the sort key (a HEALPix pixel index) from one raw row.
type KeyFunc func(row []byte) int64

// inMemoryThreshold caps the main-table size sorted by materializing a
// full permutation in memory; larger tables go through
// sortExternalInMemoryBuf's counting-sort path instead.
const inMemoryThreshold = 256 << 20 // 256 MiB

// Sort reorders mainTable (a slice of exactly nRows*rowWidth bytes) into
// increasing key order and returns a new slice with the same length. It
// picks the in-memory or external-sort path based on the main table's
// size.
func Sort(mainTable []byte, rowWidth int, nRows int64, key KeyFunc) ([]byte, error) {
	if int64(len(mainTable)) != nRows*int64(rowWidth) {
		return nil, fmt.Errorf("hsort: main table length %d does not match %d rows * %d bytes", len(mainTable), nRows, rowWidth)
	}
	if len(mainTable) <= inMemoryThreshold {
		return sortInMemory(mainTable, rowWidth, nRows, key), nil
	}
	return sortExternalInMemoryBuf(mainTable, rowWidth, nRows, key)
}

// sortInMemory builds an index permutation and copies rows into place; used
// when the whole table comfortably fits in RAM twice over.
func sortInMemory(mainTable []byte, rowWidth int, nRows int64, key KeyFunc) []byte {
	type keyedRow struct {
		k   int64
		idx int64
	}
	rows := make([]keyedRow, nRows)
	for i := int64(0); i < nRows; i++ {
		row := mainTable[i*int64(rowWidth) : (i+1)*int64(rowWidth)]
		rows[i] = keyedRow{k: key(row), idx: i}
	}
	sort.Slice(rows, func(a, b int) bool {
		if rows[a].k != rows[b].k {
			return rows[a].k < rows[b].k
		}
		return rows[a].idx < rows[b].idx // stable tie-break
	})
	out := make([]byte, len(mainTable))
	for dst, r := range rows {
		copy(out[int64(dst)*int64(rowWidth):], mainTable[r.idx*int64(rowWidth):(r.idx+1)*int64(rowWidth)])
	}
	return out
}

// sortExternalInMemoryBuf runs the counting-sort algorithm (see
// SortExternalToFile) but materializes the result in a memory buffer
// instead of a file, for callers that want the bytes directly.
func sortExternalInMemoryBuf(mainTable []byte, rowWidth int, nRows int64, key KeyFunc) ([]byte, error) {
	cursor, err := buildCursor(mainTable, rowWidth, nRows, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(mainTable))
	for i := int64(0); i < nRows; i++ {
		row := mainTable[i*int64(rowWidth) : (i+1)*int64(rowWidth)]
		k := key(row)
		pos := cursor[k]
		cursor[k]++
		copy(out[pos*int64(rowWidth):], row)
	}
	return out, nil
}

// SortExternalToFile implements the count-map external-sort path: a first
// pass over the rows builds a histogram of key counts, which is turned
// into a per-key base write offset (a prefix sum over keys in increasing
// order); a second pass writes each row directly to its final offset in
// outPath via random access, so the process never holds more than the
// histogram (one int64 pair per distinct key) and one row at a time in
// memory.
func SortExternalToFile(mainTable []byte, rowWidth int, nRows int64, key KeyFunc, outPath string) error {
	cursor, err := buildCursor(mainTable, rowWidth, nRows, key)
	if err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("hsort: creating %s: %w", outPath, err)
	}
	defer out.Close()
	if err := out.Truncate(nRows * int64(rowWidth)); err != nil {
		return err
	}
	for i := int64(0); i < nRows; i++ {
		row := mainTable[i*int64(rowWidth) : (i+1)*int64(rowWidth)]
		k := key(row)
		pos := cursor[k]
		cursor[k]++
		if _, err := out.WriteAt(row, pos*int64(rowWidth)); err != nil {
			return fmt.Errorf("hsort: writing row at offset %d: %w", pos*int64(rowWidth), err)
		}
	}
	return nil
}

// SortDirectory implements the directory-of-files concatenation path: each
// element of tables is a separate BINTABLE's main table (e.g. one per HDU
// of a split catalog); rows are treated as one virtual stream and written,
// in sorted order, to outPath.
func SortDirectory(tables [][]byte, rowWidth int, key KeyFunc, outPath string) (nRows int64, err error) {
	for _, t := range tables {
		nRows += int64(len(t)) / int64(rowWidth)
	}
	counts := map[int64]int64{}
	for _, t := range tables {
		n := int64(len(t)) / int64(rowWidth)
		for i := int64(0); i < n; i++ {
			row := t[i*int64(rowWidth) : (i+1)*int64(rowWidth)]
			counts[key(row)]++
		}
	}
	cursor := prefixSumCursor(counts)

	out, ferr := os.Create(outPath)
	if ferr != nil {
		return 0, fmt.Errorf("hsort: creating %s: %w", outPath, ferr)
	}
	defer out.Close()
	if err := out.Truncate(nRows * int64(rowWidth)); err != nil {
		return 0, err
	}
	for _, t := range tables {
		n := int64(len(t)) / int64(rowWidth)
		for i := int64(0); i < n; i++ {
			row := t[i*int64(rowWidth) : (i+1)*int64(rowWidth)]
			k := key(row)
			pos := cursor[k]
			cursor[k]++
			if _, err := out.WriteAt(row, pos*int64(rowWidth)); err != nil {
				return 0, err
			}
		}
	}
	return nRows, nil
}

func buildCursor(mainTable []byte, rowWidth int, nRows int64, key KeyFunc) (map[int64]int64, error) {
	counts := map[int64]int64{}
	for i := int64(0); i < nRows; i++ {
		row := mainTable[i*int64(rowWidth) : (i+1)*int64(rowWidth)]
		counts[key(row)]++
	}
	return prefixSumCursor(counts), nil
}

func prefixSumCursor(counts map[int64]int64) map[int64]int64 {
	keys := make([]int64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	cursor := make(map[int64]int64, len(counts))
	var running int64
	for _, k := range keys {
		cursor[k] = running
		running += counts[k]
	}
	return cursor
}

// RewriteNAXIS2 overwrites the NAXIS2 keyword record in-place within a raw
// 2880-byte-aligned header block, used after a split keeps each output
// file's row count different from the source it was carved from.
func RewriteNAXIS2(headerRecords [][80]byte, newRowCount int64) error {
	for i := range headerRecords {
		rec := fits.Record(headerRecords[i])
		if rec.Name() == "NAXIS2" {
			if err := fits.WriteFixedInt(&rec, "NAXIS2", newRowCount, ""); err != nil {
				return err
			}
			headerRecords[i] = [80]byte(rec)
			return nil
		}
	}
	return fmt.Errorf("hsort: NAXIS2 keyword not found in header")
}

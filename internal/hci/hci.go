// Package hci builds and queries a HEALPix Cumulative Index (HCI): for a
// BINTABLE already sorted by HEALPix pixel index (internal/hsort), the
// index maps each pixel at a chosen depth to the row range of its rows,
// letting spatial queries binary-search straight to the matching rows
// without scanning the whole table.
//
// Two storage shapes are supported, mirroring the index's own size versus
// the catalog's sparsity: Implicit holds one cumulative count per pixel
// (dense, O(NPix) memory, O(1) lookup); Explicit holds only the pixels
// that actually received rows (sparse, O(distinct pixels) memory, O(log n)
// lookup). BuildIndex picks one of the two, overridable with a ratio
// threshold for deciding where the explicit form becomes cheaper.
package hci

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cds-astro/fitscat/internal/healpix"
)

// Keyword names used to serialize an HCI alongside the BINTABLE it indexes.
const (
	KeyDepth   = "HCI_DPTH" // index depth
	KeyFileNm  = "HCI_FNM"  // indexed file's base name
	KeyFileLen = "HCI_FLEN" // indexed file's byte length
	KeyFileMD5 = "HCI_FMD5" // indexed file's MD5, to detect staleness
	KeyFileDat = "HCI_FDAT" // indexed file's modification time, RFC3339
	KeyLonCol  = "HCI_LON"  // 1-based TTYPE column index used as longitude
	KeyLatCol  = "HCI_LAT"  // 1-based TTYPE column index used as latitude
)

// Shape distinguishes the two cumulative-count storage layouts.
type Shape int

const (
	ShapeImplicit Shape = iota
	ShapeExplicit
)

// Index is a built HEALPix cumulative index over a sorted BINTABLE.
type Index struct {
	Depth uint8
	Shape Shape

	// Implicit: cumul[p+1] is the number of rows with pixel <= p, for
	// p in [0, NPix). Length NPix(Depth)+1, cumul[0]==0.
	implicitCumul []int64

	// Explicit: sparse (pixel, cumulative count through this pixel)
	// pairs in increasing pixel order, for pixels that received >=1 row.
	explicitPix   []int64
	explicitCumul []int64

	totalRows int64
}

// BuildIndex scans keyOf over nRows sorted rows and accumulates per-pixel
// counts at depth. ratio controls the implicit/explicit choice: when the
// number of distinct nonzero pixels is less than ratio * NPix(depth), the
// sparser Explicit shape is used; otherwise Implicit. A ratio of 0 always
// picks Explicit, 1 always picks Implicit — callers unsure should pass the
// default 0.25 (explicit wins once occupancy drops under a quarter).
func BuildIndex(nRows int64, depth uint8, keyOf func(rowIdx int64) int64, ratio float64) (*Index, error) {
	npix := healpix.NPix(depth)
	counts := make(map[int64]int64)
	var lastKey int64 = -1
	for i := int64(0); i < nRows; i++ {
		k := keyOf(i)
		if k < lastKey {
			return nil, fmt.Errorf("hci: input is not sorted by pixel index: row %d has key %d after %d", i, k, lastKey)
		}
		lastKey = k
		counts[k]++
	}

	distinct := int64(len(counts))
	useExplicit := ratio < 1.0 && (ratio <= 0 || float64(distinct) < ratio*float64(npix))

	idx := &Index{Depth: depth, totalRows: nRows}
	if useExplicit {
		idx.Shape = ShapeExplicit
		pixels := make([]int64, 0, len(counts))
		for p := range counts {
			pixels = append(pixels, p)
		}
		sort.Slice(pixels, func(i, j int) bool { return pixels[i] < pixels[j] })
		idx.explicitPix = pixels
		idx.explicitCumul = make([]int64, len(pixels))
		var running int64
		for i, p := range pixels {
			running += counts[p]
			idx.explicitCumul[i] = running
		}
		return idx, nil
	}

	idx.Shape = ShapeImplicit
	idx.implicitCumul = make([]int64, npix+1)
	var running int64
	for p := int64(0); p < npix; p++ {
		running += counts[p]
		idx.implicitCumul[p+1] = running
	}
	return idx, nil
}

// Get returns the half-open row range [start, end) of the rows whose
// pixel index equals pix: start is the cumulative count through pix-1,
// end is the cumulative count through pix.
func (idx *Index) Get(pix int64) (start, end int64) {
	return idx.GetCell(pix, pix)
}

// GetCell returns the half-open row range covering every pixel in
// [firstPix, lastPix] inclusive, relying on rows already being sorted by
// pixel so the range is contiguous.
func (idx *Index) GetCell(firstPix, lastPix int64) (start, end int64) {
	return idx.cumulativeThrough(firstPix - 1), idx.cumulativeThrough(lastPix)
}

// GetCellNoncumulative returns the row count contained in exactly one
// pixel (not a cumulative range), i.e. GetCell(pix,pix)'s end-start.
func (idx *Index) GetCellNoncumulative(pix int64) int64 {
	s, e := idx.Get(pix)
	return e - s
}

// GetAtDepth returns the row range for pix expressed at queryDepth, a depth
// coarser than (or equal to) idx.Depth, by expanding pix into the range of
// idx.Depth-resolution pixels it covers. This is how a single index built
// at the finest depth (typically 29) answers coverage/tile queries at any
// coarser HiPS order without being rebuilt.
func (idx *Index) GetAtDepth(queryDepth uint8, pix int64) (start, end int64) {
	if queryDepth == idx.Depth {
		return idx.Get(pix)
	}
	first, last := healpix.ChildRange(pix, queryDepth, idx.Depth)
	return idx.GetCell(first, last-1)
}

// CountAtDepth returns the noncumulative row count covered by pix at
// queryDepth.
func (idx *Index) CountAtDepth(queryDepth uint8, pix int64) int64 {
	s, e := idx.GetAtDepth(queryDepth, pix)
	return e - s
}

func (idx *Index) cumulativeThrough(pix int64) int64 {
	if pix < 0 {
		return 0
	}
	switch idx.Shape {
	case ShapeImplicit:
		if pix+1 >= int64(len(idx.implicitCumul)) {
			return idx.totalRows
		}
		return idx.implicitCumul[pix+1]
	default:
		i := sort.Search(len(idx.explicitPix), func(i int) bool { return idx.explicitPix[i] > pix })
		if i == 0 {
			return 0
		}
		return idx.explicitCumul[i-1]
	}
}

// TotalRows returns the row count the index was built over.
func (idx *Index) TotalRows() int64 { return idx.totalRows }

// NPix returns the pixel count at the index's own depth (12*4^Depth).
func (idx *Index) NPix() int64 { return healpix.NPix(idx.Depth) }

// ImplicitOffsets exposes the dense cumulative-row-count array backing an
// Implicit-shape index (length NPix()+1, entry 0 always 0), for callers
// serializing the index to its own FITS file. Returns nil for an Explicit
// index.
func (idx *Index) ImplicitOffsets() []int64 {
	if idx.Shape != ShapeImplicit {
		return nil
	}
	return idx.implicitCumul
}

// ExplicitEntries exposes the sparse (pixel, cumulative-row-count) pairs
// backing an Explicit-shape index, in increasing pixel order. Returns nil
// for an Implicit index.
func (idx *Index) ExplicitEntries() (pixels, cumulative []int64) {
	if idx.Shape != ShapeExplicit {
		return nil, nil
	}
	return idx.explicitPix, idx.explicitCumul
}

// FromImplicitOffsets reconstructs an Implicit-shape Index from a
// previously serialized cumulative-offset array, as read back from an HCI
// FITS file.
func FromImplicitOffsets(depth uint8, cumul []int64) *Index {
	var total int64
	if len(cumul) > 0 {
		total = cumul[len(cumul)-1]
	}
	return &Index{Depth: depth, Shape: ShapeImplicit, implicitCumul: cumul, totalRows: total}
}

// FromExplicitEntries reconstructs an Explicit-shape Index from previously
// serialized sparse (pixel, cumulative-row-count) pairs, as read back from
// an HCI FITS file.
func FromExplicitEntries(depth uint8, pixels, cumulative []int64) *Index {
	var total int64
	if len(cumulative) > 0 {
		total = cumulative[len(cumulative)-1]
	}
	return &Index{Depth: depth, Shape: ShapeExplicit, explicitPix: pixels, explicitCumul: cumulative, totalRows: total}
}

// FileFingerprint is the metadata HCI_FNM/HCI_FLEN/HCI_FMD5/HCI_FDAT record
// about the indexed file, used to detect a stale index at query time.
type FileFingerprint struct {
	Name    string
	Length  int64
	MD5Hex  string
	ModTime string // RFC3339
}

// Fingerprint computes name/length/MD5/mtime for the file at path.
func Fingerprint(path string) (*FileFingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hci: opening %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return &FileFingerprint{
		Name:    info.Name(),
		Length:  info.Size(),
		MD5Hex:  fmt.Sprintf("%x", h.Sum(nil)),
		ModTime: info.ModTime().Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

// Stale reports whether fp no longer matches the file at path (size or
// MD5 mismatch), meaning a cached index built against fp should be rebuilt.
func (fp *FileFingerprint) Stale(path string) (bool, error) {
	cur, err := Fingerprint(path)
	if err != nil {
		return true, err
	}
	return cur.Length != fp.Length || cur.MD5Hex != fp.MD5Hex, nil
}

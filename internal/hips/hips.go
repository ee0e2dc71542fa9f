// Package hips builds the tile hierarchy of a catalog HiPS: starting from
// two shallow "allsky" orders (1 and 2) sized so that a client can render a
// whole-sky overview from a handful of rows, then recursing depth-first from
// order 3 downward, peeling off up to NTot representative rows per cell
// until every remaining row has been assigned to some tile.
//
// Row selection within a cell either follows a caller-supplied Scorer
// function (the row with the lowest score is kept shallowest) or, with
// no score, prefers the row nearest the middle of the cell's row range —
// avoiding clustering every cell's representative at its lowest row number,
// which would bias the allsky view toward whichever part of the sky the
// catalog happened to be sorted from.
package hips

import (
	"fmt"
	"sort"

	"github.com/cds-astro/fitscat/internal/healpix"
	"github.com/cds-astro/fitscat/internal/hci"
	"github.com/cds-astro/fitscat/internal/moc"
)

// Params controls the HiPS partitioning.
type Params struct {
	// N1 is the target row count for the order-1 allsky tile, before
	// scaling down for partial-sky coverage.
	N1 uint64
	// R21 is the ratio of order-2 to order-1 row counts (n2 = R21*n1).
	R21 uint64
	// NTot is the row budget of each tile from order 3 downward.
	NTot uint64
}

// DeriveN1N2 scales Params.N1/R21 by the catalog's actual sky coverage:
// nonEmptyDepth2Cells out of the 192 cells at depth 2. A catalog covering
// only a thin strip of sky gets proportionally smaller allsky tiles instead
// of wasting its row budget on empty cells.
func DeriveN1N2(p Params, nonEmptyDepth2Cells uint64) (n1, n2 uint64) {
	onePlusR21 := 1 + p.R21
	n12Allsky := p.N1 * onePlusR21
	n12 := (n12Allsky * nonEmptyDepth2Cells) / 192
	n1 = n12 / onePlusR21
	n2 = n12 - n1
	return n1, n2
}

// Scorer assigns a numeric score to a row, used to pick which row
// represents a cell at the shallower orders of the hierarchy. Lower scores
// are preferred, matching a magnitude-like column where brighter (smaller)
// is "better". A nil Scorer falls back to middle-preferring selection.
type Scorer func(recno int64) float64

// Uniq packs (depth, pix) into the IVOA MOC NUNIQ numbering: pix +
// 4^(depth+1). Ranges of NUNIQ values never overlap across depths, so it
// doubles as a sortable key for the per-tile stats index.
func Uniq(depth uint8, pix int64) uint64 {
	return uint64(pix) + uint64(1)<<(2*(uint(depth)+1))
}

// FromUniq is Uniq's inverse.
func FromUniq(u uint64) (depth uint8, pix int64) {
	d := uint8(0)
	for {
		base := uint64(1) << (2 * (uint(d) + 1))
		next := uint64(1) << (2 * (uint(d) + 2))
		if u >= base && u < next {
			return d, int64(u - base)
		}
		d++
		if d > healpix.MaxDepth+1 {
			return d, int64(u)
		}
	}
}

// TileStat is one row of the tile-stats index built alongside the
// hierarchy: how many rows are cumulatively reachable through this cell
// (CumulCount, from the HCI), and how many of those rows this tile itself
// displays (SelectedCount).
type TileStat struct {
	Depth         uint8
	Pix           int64
	CumulCount    int64
	SelectedCount int64
	IsLeaf        bool
	// Rows holds the row numbers (into the indexed catalog) this tile
	// displays, in no particular order. Callers materializing per-layer
	// FITS files index the source table with these.
	Rows []int64
}

// Builder runs the recursive partitioning over an already-sorted,
// HCI-indexed catalog.
type Builder struct {
	idx      *hci.Index
	score    Scorer
	params   Params
	selected map[int64]bool
	tiles    []TileStat
	moc      *moc.MOC
	depthMax uint8
}

// NewBuilder prepares a Builder over idx (the finest-depth cumulative
// index), scoring rows with score (nil for middle-preferring selection).
func NewBuilder(idx *hci.Index, score Scorer, params Params) *Builder {
	return &Builder{
		idx:      idx,
		score:    score,
		params:   params,
		selected: make(map[int64]bool),
		moc:      moc.New(healpix.MaxDepth),
	}
}

// Build runs the full order-1/2 allsky pass followed by the depth-first
// order>=3 recursion, and returns the tile stats (unsorted), the coverage
// MOC of the hierarchy's leaf tiles, and the deepest order reached.
func (b *Builder) Build() ([]TileStat, *moc.MOC, uint8, error) {
	if b.idx.TotalRows() == 0 {
		return nil, b.moc, 0, nil
	}
	if b.idx.Depth < 3 {
		return nil, nil, 0, fmt.Errorf("hips: index depth %d is too coarse; the hierarchy starts at order 3", b.idx.Depth)
	}

	var nonEmpty2 uint64
	for pix := int64(0); pix < healpix.NPix(2); pix++ {
		if b.idx.CountAtDepth(2, pix) > 0 {
			nonEmpty2++
		}
	}
	n1, n2 := DeriveN1N2(b.params, nonEmpty2)

	if err := b.processAllsky(1, n1); err != nil {
		return nil, nil, 0, err
	}
	if err := b.processAllsky(2, n2); err != nil {
		return nil, nil, 0, err
	}

	for pix := int64(0); pix < healpix.NPix(2); pix++ {
		if err := b.recurse(3, pix*4+0); err != nil {
			return nil, nil, 0, err
		}
		if err := b.recurse(3, pix*4+1); err != nil {
			return nil, nil, 0, err
		}
		if err := b.recurse(3, pix*4+2); err != nil {
			return nil, nil, 0, err
		}
		if err := b.recurse(3, pix*4+3); err != nil {
			return nil, nil, 0, err
		}
	}

	return b.tiles, b.moc, b.depthMax, nil
}

// processAllsky distributes quota rows evenly across depth's nonempty
// cells and records one (non-recursive) tile stat per nonempty cell.
func (b *Builder) processAllsky(depth uint8, quota uint64) error {
	npix := healpix.NPix(depth)
	var nonEmpty []int64
	for pix := int64(0); pix < npix; pix++ {
		if b.idx.CountAtDepth(depth, pix) > 0 {
			nonEmpty = append(nonEmpty, pix)
		}
	}
	if len(nonEmpty) == 0 {
		return nil
	}
	perCell := quota / uint64(len(nonEmpty))
	if perCell == 0 {
		perCell = 1
	}
	for _, pix := range nonEmpty {
		start, end := b.idx.GetAtDepth(depth, pix)
		chosen, err := b.selectFromRange(start, end, int64(perCell))
		if err != nil {
			return err
		}
		if depth > b.depthMax {
			b.depthMax = depth
		}
		b.tiles = append(b.tiles, TileStat{
			Depth:         depth,
			Pix:           pix,
			CumulCount:    end,
			SelectedCount: int64(len(chosen)),
			Rows:          chosen,
		})
	}
	return nil
}

// recurse processes one cell of the order>=3 hierarchy: it selects up to
// a density-scaled share of NTot representative rows from the cell's
// still-unselected rows, and recurses into the four children only if rows
// remain afterward. A cell with nothing left after its own quota (or at
// the index's own depth) is a leaf and contributes to the coverage MOC; a
// cell with no unselected rows to begin with records no tile and no
// coverage.
func (b *Builder) recurse(depth uint8, pix int64) error {
	start, end := b.idx.GetAtDepth(depth, pix)
	remainingBefore := b.countUnselected(start, end)
	if remainingBefore == 0 {
		return nil
	}

	// A cell at the index's own native depth can't be split any finer:
	// whatever rows remain there are indistinguishable, so this tile must
	// claim all of them rather than leave some unassigned.
	forcedLeaf := depth >= healpix.MaxDepth || depth >= b.idx.Depth
	quota := remainingBefore
	if !forcedLeaf {
		quota = int64(b.params.NTot) * b.cov3(depth, pix) / 64
	}

	chosen, err := b.selectFromRange(start, end, quota)
	if err != nil {
		return err
	}

	remainingAfter := b.countUnselected(start, end)
	isLeaf := forcedLeaf || remainingAfter == 0

	if depth > b.depthMax {
		b.depthMax = depth
	}
	b.tiles = append(b.tiles, TileStat{
		Depth:         depth,
		Pix:           pix,
		CumulCount:    end,
		SelectedCount: int64(len(chosen)),
		IsLeaf:        isLeaf,
		Rows:          chosen,
	})

	if isLeaf {
		first, last := healpix.ChildRange(pix, depth, healpix.MaxDepth)
		b.moc.Add(first, last)
		return nil
	}

	for k := int64(0); k < 4; k++ {
		if err := b.recurse(depth+1, pix*4+k); err != nil {
			return err
		}
	}
	return nil
}

// cov3 counts the non-empty sub-cells three HEALPix orders deeper than
// (depth, pix), scaled into [0, 64]: 64 is every one of the 4^3
// grandchildren-of-grandchildren covered, 0 is none. This is the sky-
// coverage fraction a tile's row quota is scaled by, so a cell that's
// mostly empty at fine resolution (a sparse corner of a dense region)
// doesn't claim as many representative rows as a uniformly dense one.
func (b *Builder) cov3(depth uint8, pix int64) int64 {
	subDepth := depth + 3
	if subDepth > b.idx.Depth {
		subDepth = b.idx.Depth
	}
	first, last := healpix.ChildRange(pix, depth, subDepth)
	var n int64
	for p := first; p < last; p++ {
		if b.idx.CountAtDepth(subDepth, p) > 0 {
			n++
		}
	}
	if missing := depth + 3 - subDepth; missing > 0 {
		// the index doesn't resolve all the way to depth+3; scale the
		// coarser non-empty count back up so it stays comparable to a
		// true depth+3 count out of 64.
		n <<= 2 * uint(missing)
	}
	return n
}

func (b *Builder) countUnselected(start, end int64) int64 {
	var n int64
	for r := start; r < end; r++ {
		if !b.selected[r] {
			n++
		}
	}
	return n
}

// selectFromRange picks up to n not-yet-selected row numbers from
// [start, end) and marks them selected.
func (b *Builder) selectFromRange(start, end int64, n int64) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	var avail []int64
	for r := start; r < end; r++ {
		if !b.selected[r] {
			avail = append(avail, r)
		}
	}
	if int64(len(avail)) <= n {
		for _, r := range avail {
			b.selected[r] = true
		}
		return avail, nil
	}

	var chosen []int64
	if b.score != nil {
		sort.Slice(avail, func(i, j int) bool { return b.score(avail[i]) < b.score(avail[j]) })
		chosen = append(chosen, avail[:n]...)
	} else {
		chosen = middlePreferring(avail, n)
	}
	for _, r := range chosen {
		b.selected[r] = true
	}
	return chosen, nil
}

// middlePreferring returns n elements of avail (already sorted in row
// order) starting from the middle and alternating outward, so that
// successive selections within a cell spread out instead of bunching at
// the first unselected row.
func middlePreferring(avail []int64, n int64) []int64 {
	mid := len(avail) / 2
	lo, hi := mid-1, mid
	var chosen []int64
	for int64(len(chosen)) < n && (lo >= 0 || hi < len(avail)) {
		if hi < len(avail) {
			chosen = append(chosen, avail[hi])
			hi++
			if int64(len(chosen)) >= n {
				break
			}
		}
		if lo >= 0 {
			chosen = append(chosen, avail[lo])
			lo--
		}
	}
	return chosen
}

// Validate reports an error for a Params combination that would make the
// hierarchy degenerate (zero tile budget).
func (p Params) Validate() error {
	if p.NTot == 0 {
		return fmt.Errorf("hips: NTot must be positive")
	}
	return nil
}

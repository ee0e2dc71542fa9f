package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat/internal/bintable"
	"github.com/cds-astro/fitscat/internal/healpix"
	"github.com/cds-astro/fitscat/internal/hci"
	"github.com/cds-astro/fitscat/internal/hips"
	"github.com/cds-astro/fitscat/internal/hsort"
	"github.com/cds-astro/fitscat/internal/kvindex"
	"github.com/cds-astro/fitscat/internal/moc"
	"github.com/cds-astro/fitscat/internal/properties"
)

// tileValue packs a tile's stats the way qhips's CGI tile-list endpoint
// expects to unpack them: the total row count reachable through the cell in
// the upper 24 bits, the row count this tile itself displays in the lower
// 40 bits.
func tileValue(totCount, cumulCount int64) uint64 {
	return uint64(totCount)<<40 | (uint64(cumulCount) & 0x000000FFFFFFFFFF)
}

func newMkhipsCmd() *cobra.Command {
	var (
		hduIndex  int
		idxPath   string
		scoreCol  string
		n1, r21   uint64
		nTot      uint64
		outDir    string
		creatorID string
		title     string
	)
	cmd := &cobra.Command{
		Use:   "mkhips <file>",
		Short: "Build a catalog HiPS tile hierarchy from a sorted, HCI-indexed BINTABLE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			mf, primary, table, schema, err := openTable(path, hduIndex)
			if err != nil {
				return err
			}
			defer mf.Close()

			main, heap := mainAndHeap(table)
			rowWidth := schema.RowWidth

			idx, _, _, err := loadHCIIndex(idxPath, table.DataStart, rowWidth)
			if err != nil {
				return err
			}

			params := hips.Params{N1: n1, R21: r21, NTot: nTot}
			if err := params.Validate(); err != nil {
				return err
			}

			var scorer hips.Scorer
			if scoreCol != "" {
				scoreIdx, err := fieldIndex(schema, scoreCol)
				if err != nil {
					return err
				}
				fv := bintable.NewFieldVisitor(len(schema.Fields))
				scorer = func(recno int64) float64 {
					if err := bintable.DecodeRow(schema, rowAt(main, rowWidth, recno), heap, fv); err != nil {
						return math.Inf(1)
					}
					return fieldFloat(fv.Row[scoreIdx])
				}
			}

			builder := hips.NewBuilder(idx, scorer, params)
			tiles, mocMap, depthMax, err := builder.Build()
			if err != nil {
				return err
			}

			data := mf.Bytes()
			primaryBytes := verbatimHDU(data, primary)
			tableHeaderRecords := make([][80]byte, len(table.Records))
			for i, rec := range table.Records {
				tableHeaderRecords[i] = [80]byte(*rec)
			}

			byDepth := make(map[uint8][]hips.TileStat)
			for _, t := range tiles {
				byDepth[t.Depth] = append(byDepth[t.Depth], t)
			}

			for d, ts := range byDepth {
				var rows []int64
				for _, t := range ts {
					rows = append(rows, t.Rows...)
				}
				sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

				layerMain := make([]byte, 0, len(rows)*rowWidth)
				for _, r := range rows {
					layerMain = append(layerMain, rowAt(main, rowWidth, r)...)
				}
				layerHeader := make([][80]byte, len(tableHeaderRecords))
				copy(layerHeader, tableHeaderRecords)
				if err := hsort.RewriteNAXIS2(layerHeader, int64(len(rows))); err != nil {
					return err
				}
				layerPath := filepath.Join(outDir, fmt.Sprintf("hips.cat.layer%d.fits", d))
				if err := writeAll(layerPath, primaryBytes, recordsToBytes(layerHeader), layerMain, zeroPad(int64(len(layerMain))), heap, zeroPad(int64(len(heap)))); err != nil {
					return err
				}
				logger.Info().Str("path", layerPath).Int("rows", len(rows)).Msg("HiPS layer written; run mkidx on it to build a per-layer cumulative index")
			}

			tilesPath := filepath.Join(outDir, "tiles.bstree")
			w, err := kvindex.Create(tilesPath)
			if err != nil {
				return err
			}
			sortedTiles := append([]hips.TileStat(nil), tiles...)
			sort.Slice(sortedTiles, func(i, j int) bool {
				return hips.Uniq(sortedTiles[i].Depth, sortedTiles[i].Pix) < hips.Uniq(sortedTiles[j].Depth, sortedTiles[j].Pix)
			})
			for _, t := range sortedTiles {
				var val [8]byte
				binary.BigEndian.PutUint64(val[:], tileValue(t.CumulCount, t.SelectedCount))
				if err := w.Put(hips.Uniq(t.Depth, t.Pix), val[:]); err != nil {
					return err
				}
			}
			if err := w.Close(); err != nil {
				return err
			}

			mocPath := filepath.Join(outDir, "moc.fits")
			if err := writeMOCFile(mocPath, mocMap); err != nil {
				return err
			}

			ra, dec, fov, skyFrac := mocCoverageStats(mocMap)
			props := &properties.Properties{
				CreatorDID:     creatorID,
				ObsTitle:       title,
				DataProduct:    "catalog",
				HipsVersion:    "1.4",
				HipsFrame:      "equatorial",
				HipsOrder:      int(depthMax),
				HipsOrderMin:   1,
				HipsTileFormat: "tsv",
				HipsStatus:     "public master clonable",
				HipsCatNRows:   idx.TotalRows(),
				HipsInitialRA:  ra,
				HipsInitialDec: dec,
				HipsInitialFov: fov,
				MocSqDegApprox: skyFrac,
			}
			propsPath := filepath.Join(outDir, "properties.toml")
			if err := properties.Write(propsPath, props); err != nil {
				return err
			}

			logger.Info().Str("dir", outDir).Int("tiles", len(tiles)).Uint8("depthMax", depthMax).Msg("HiPS collection built")
			return nil
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", -1, "BINTABLE HDU index (default: first BINTABLE found)")
	cmd.Flags().StringVar(&idxPath, "idx", "", "HCI index FITS file built by mkidx, at the finest depth (required)")
	cmd.Flags().StringVar(&scoreCol, "score", "", "column used to pick each tile's representative rows (lower is preferred); default: middle-preferring selection")
	cmd.Flags().Uint64Var(&n1, "n1", 3000, "target row count for the order-1 allsky tile")
	cmd.Flags().Uint64Var(&r21, "r21", 3, "ratio of order-2 to order-1 allsky row counts")
	cmd.Flags().Uint64Var(&nTot, "ntot", 50, "row budget of each tile from order 3 downward")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory for the HiPS collection")
	cmd.Flags().StringVar(&creatorID, "creator-did", "", "IVOA creator_did for properties.toml")
	cmd.Flags().StringVar(&title, "title", "", "obs_title for properties.toml")
	cmd.MarkFlagRequired("idx")
	return cmd
}

// writeMOCFile renders m as a minimal BINTABLE of half-open nested-scheme
// pixel ranges at m.Depth. This is a range encoding rather than the IVOA
// MOC FITS serialization's per-order NUNIQ cell list (see DESIGN.md); a
// consumer that only needs m.Contains/m.Cover coverage tests (this
// toolkit's own qhips moc.fits endpoint) round-trips it exactly.
func writeMOCFile(path string, m *moc.MOC) error {
	b := newHeaderBuilder().
		String("XTENSION", "BINTABLE", "HiPS coverage map").
		Int("BITPIX", 8, "").
		Int("NAXIS", 2, "").
		Int("NAXIS1", 16, "").
		Int("NAXIS2", int64(len(m.Ranges)), "").
		Int("PCOUNT", 0, "").
		Int("GCOUNT", 1, "").
		Int("TFIELDS", 2, "").
		String("TTYPE1", "RANGE_START", "nested-scheme pixel index, inclusive").
		String("TFORM1", "1K", "").
		String("TTYPE2", "RANGE_END", "nested-scheme pixel index, exclusive").
		String("TFORM2", "1K", "").
		Int("MOC_DPTH", int64(m.Depth), "depth the ranges are expressed at")

	body := make([]byte, 16*len(m.Ranges))
	for i, rg := range m.Ranges {
		binary.BigEndian.PutUint64(body[i*16:], uint64(rg.Start))
		binary.BigEndian.PutUint64(body[i*16+8:], uint64(rg.End))
	}
	return writeAll(path, minimalPrimaryHeader(), b.Bytes(), body, zeroPad(int64(len(body))))
}

// mocCoverageStats summarizes a leaf-tile MOC as an initial view (mean
// center of covered cells and the angular radius spanning them) and the
// fraction of the sky it covers, for properties.toml.
func mocCoverageStats(m *moc.MOC) (ra, dec, fovDeg, skyFraction float64) {
	if m == nil || len(m.Ranges) == 0 {
		return 0, 0, 180, 0
	}
	layer := healpix.Get(m.Depth)
	var sx, sy, sz float64
	var n int64
	for _, rg := range m.Ranges {
		for p := rg.Start; p < rg.End; p++ {
			lon, lat := layer.Center(p)
			cl := math.Cos(lat)
			sx += cl * math.Cos(lon)
			sy += cl * math.Sin(lon)
			sz += math.Sin(lat)
			n++
		}
	}
	if n == 0 {
		return 0, 0, 180, 0
	}
	sx, sy, sz = sx/float64(n), sy/float64(n), sz/float64(n)
	centerLon := math.Atan2(sy, sx)
	centerLat := math.Atan2(sz, math.Hypot(sx, sy))

	var maxSep float64
	for _, rg := range m.Ranges {
		for p := rg.Start; p < rg.End; p++ {
			lon, lat := layer.Center(p)
			sdlon := math.Sin((lon - centerLon) / 2)
			sdlat := math.Sin((lat - centerLat) / 2)
			a := sdlat*sdlat + math.Cos(centerLat)*math.Cos(lat)*sdlon*sdlon
			sep := 2 * math.Asin(math.Sqrt(math.Min(1, a)))
			if sep > maxSep {
				maxSep = sep
			}
		}
	}

	skyFraction = float64(m.NPix()) / float64(healpix.NPix(m.Depth))
	return centerLon * 180 / math.Pi, centerLat * 180 / math.Pi, maxSep * 180 / math.Pi, skyFraction
}

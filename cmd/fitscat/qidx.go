package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat"
	"github.com/cds-astro/fitscat/internal/bintable"
	"github.com/cds-astro/fitscat/internal/hci"
	"github.com/cds-astro/fitscat/internal/hsort"
	"github.com/cds-astro/fitscat/internal/region"
)

// findKeyword returns the raw value/comment bytes of the first record named
// keyword, or nil if absent.
func findKeyword(records []*fits.Record, keyword string) []byte {
	for _, rec := range records {
		if rec.Name() == keyword {
			return rec.ValueComment()
		}
	}
	return nil
}

func keywordString(records []*fits.Record, keyword string) (string, error) {
	vc := findKeyword(records, keyword)
	if vc == nil {
		return "", fmt.Errorf("fitscat: HCI file missing %s", keyword)
	}
	v, _, err := fits.ParseFixedString(vc)
	return v, err
}

func keywordInt(records []*fits.Record, keyword string) (int64, error) {
	vc := findKeyword(records, keyword)
	if vc == nil {
		return 0, fmt.Errorf("fitscat: HCI file missing %s", keyword)
	}
	v, _, err := fits.ParseFixedInt(vc)
	return v, err
}

// loadHCIIndex reads an HCI index file written by mkidx and reconstructs an
// hci.Index with row-index semantics, inverting the byte offsets stored on
// disk back into row indices against the indexed table's own dataStart and
// row width.
func loadHCIIndex(path string, dataStart int64, rowWidth int) (idx *hci.Index, lonCol, latCol string, err error) {
	mf, hdus, err := fits.OpenAndParse(path)
	if err != nil {
		return nil, "", "", err
	}
	defer mf.Close()
	if len(hdus) < 2 || !hdus[1].IsBinTable() {
		return nil, "", "", fmt.Errorf("fitscat: %s is not a valid HCI index file", path)
	}
	table := hdus[1]
	records := table.Records

	depthVal, err := keywordInt(records, "HCI_DPTH")
	if err != nil {
		return nil, "", "", err
	}
	shape, err := keywordString(records, "HCI_SHP")
	if err != nil {
		return nil, "", "", err
	}
	lonCol, err = keywordString(records, "HCI_LON")
	if err != nil {
		return nil, "", "", err
	}
	latCol, err = keywordString(records, "HCI_LAT")
	if err != nil {
		return nil, "", "", err
	}
	depth := uint8(depthVal)

	toRow := func(byteOffset int64) int64 {
		return (byteOffset - dataStart) / int64(rowWidth)
	}

	if shape == "IMPLICIT" {
		n := len(table.Data) / 8
		cumul := make([]int64, n)
		for i := 0; i < n; i++ {
			off := int64(binary.BigEndian.Uint64(table.Data[i*8:]))
			cumul[i] = toRow(off)
		}
		idx = hci.FromImplicitOffsets(depth, cumul)
	} else {
		n := len(table.Data) / 16
		pixels := make([]int64, n)
		cumul := make([]int64, n)
		for i := 0; i < n; i++ {
			pixels[i] = int64(binary.BigEndian.Uint64(table.Data[i*16:]))
			off := int64(binary.BigEndian.Uint64(table.Data[i*16+8:]))
			cumul[i] = toRow(off)
		}
		idx = hci.FromExplicitEntries(depth, pixels, cumul)
	}
	return idx, lonCol, latCol, nil
}

func newQidxCmd() *cobra.Command {
	var (
		hduIndex int
		idxPath  string
		spec     string
		out      string
		limit    int64
		degrees  bool
	)
	cmd := &cobra.Command{
		Use:   "qidx <file>",
		Short: "Query a sorted, HCI-indexed BINTABLE by sky region",
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

			idx, lonCol, latCol, err := loadHCIIndex(idxPath, table.DataStart, rowWidth)
			if err != nil {
				return err
			}

			shape, err := region.Parse(spec)
			if err != nil {
				return err
			}

			lonIdx, err := fieldIndex(schema, lonCol)
			if err != nil {
				return err
			}
			latIdx, err := fieldIndex(schema, latCol)
			if err != nil {
				return err
			}
			fv := bintable.NewFieldVisitor(len(schema.Fields))

			var outRows [][]byte
			var total int64
			ranges := shape.Cover(idx.Depth)
			for _, rg := range ranges {
				start, end := idx.GetCell(rg.Start, rg.End-1)
				if rg.WhollyInside {
					for r := start; r < end && (limit <= 0 || total < limit); r++ {
						outRows = append(outRows, rowAt(main, rowWidth, r))
						total++
					}
					continue
				}
				for r := start; r < end && (limit <= 0 || total < limit); r++ {
					row := rowAt(main, rowWidth, r)
					if err := bintable.DecodeRow(schema, row, heap, fv); err != nil {
						return err
					}
					lon := fieldFloat(fv.Row[lonIdx])
					lat := fieldFloat(fv.Row[latIdx])
					if degrees {
						lon *= math.Pi / 180.0
						lat *= math.Pi / 180.0
					}
					if math.IsNaN(lon) || math.IsNaN(lat) {
						continue
					}
					if !shape.Contains(lon, lat) {
						continue
					}
					outRows = append(outRows, row)
					total++
				}
			}

			outMain := make([]byte, 0, len(outRows)*rowWidth)
			for _, r := range outRows {
				outMain = append(outMain, r...)
			}

			data := mf.Bytes()
			primaryBytes := verbatimHDU(data, primary)
			tableHeaderRecords := make([][80]byte, len(table.Records))
			for i, rec := range table.Records {
				tableHeaderRecords[i] = [80]byte(*rec)
			}
			if err := hsort.RewriteNAXIS2(tableHeaderRecords, int64(len(outRows))); err != nil {
				return err
			}
			tableHeaderBytes := recordsToBytes(tableHeaderRecords)

			if out == "" {
				out = path + ".qidx"
			}
			return writeAll(out, primaryBytes, tableHeaderBytes, outMain, zeroPad(int64(len(outMain))), heap, zeroPad(int64(len(heap))))
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", -1, "BINTABLE HDU index (default: first BINTABLE found)")
	cmd.Flags().StringVar(&idxPath, "idx", "", "HCI index FITS file built by mkidx (required)")
	cmd.Flags().StringVar(&spec, "region", "", `region spec: cone/ellipse/ring/zone/jname/polygon/healpix/healpixrange/healpixranges/healpixmoc/multicone/stcs(...) — see internal/region.Parse (required)`)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output FITS file (default: <file>.qidx)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum rows to return (0: unlimited)")
	cmd.Flags().BoolVar(&degrees, "degrees", true, "lon/lat columns are in degrees (false: radians)")
	cmd.MarkFlagRequired("idx")
	cmd.MarkFlagRequired("region")
	return cmd
}

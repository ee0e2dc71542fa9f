package main

import (
	"encoding/binary"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat/internal/hci"
)

// hciFileHeader builds the primary+BINTABLE header for an HCI index file,
// describing the indexed catalog (name/length/MD5/mtime), the depth it was
// built at, and the lon/lat columns used.
func hciFileHeader(fp *hci.FileFingerprint, depth uint8, lonCol, latCol string, shape hci.Shape, nRows int64) []byte {
	b := newHeaderBuilder().
		String("XTENSION", "BINTABLE", "cumulative HEALPix index").
		Int("BITPIX", 8, "").
		Int("NAXIS", 2, "")

	if shape == hci.ShapeImplicit {
		b.Int("NAXIS1", 8, "").
			Int("NAXIS2", nRows, "").
			Int("PCOUNT", 0, "").
			Int("GCOUNT", 1, "").
			Int("TFIELDS", 1, "").
			String("TTYPE1", "OFFSET", "byte offset into the indexed file").
			String("TFORM1", "1K", "")
	} else {
		b.Int("NAXIS1", 16, "").
			Int("NAXIS2", nRows, "").
			Int("PCOUNT", 0, "").
			Int("GCOUNT", 1, "").
			Int("TFIELDS", 2, "").
			String("TTYPE1", "CELL_HASH", "nested-scheme pixel index").
			String("TFORM1", "1K", "").
			String("TTYPE2", "OFFSET", "byte offset into the indexed file").
			String("TFORM2", "1K", "")
	}

	b.Int("HCI_DPTH", int64(depth), "index depth").
		String("HCI_FNM", fp.Name, "indexed file name").
		Int("HCI_FLEN", fp.Length, "indexed file length").
		String("HCI_FMD5", fp.MD5Hex, "indexed file MD5").
		String("HCI_FDAT", fp.ModTime, "indexed file mtime").
		String("HCI_LON", lonCol, "longitude column").
		String("HCI_LAT", latCol, "latitude column")
	if shape == hci.ShapeImplicit {
		b.String("HCI_SHP", "IMPLICIT", "")
	} else {
		b.String("HCI_SHP", "EXPLICIT", "")
	}
	return b.Bytes()
}

func newMkidxCmd() *cobra.Command {
	var (
		hduIndex int
		lonCol   string
		latCol   string
		degrees  bool
		depth    uint8
		ratio    float64
		out      string
	)
	cmd := &cobra.Command{
		Use:   "mkidx <file>",
		Short: "Build a cumulative HEALPix index over an already-sorted BINTABLE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			mf, _, table, schema, err := openTable(path, hduIndex)
			if err != nil {
				return err
			}

			main, heap := mainAndHeap(table)
			keyer, err := newHealpixKeyer(schema, heap, lonCol, latCol, degrees, depth)
			if err != nil {
				mf.Close()
				return err
			}
			nRows := table.Header.RowCount
			rowWidth := schema.RowWidth

			idx, err := hci.BuildIndex(nRows, depth, keyer.IndexKeyFunc(main, rowWidth), ratio)
			if err != nil {
				mf.Close()
				return err
			}
			mf.Close()

			fp, err := hci.Fingerprint(path)
			if err != nil {
				return err
			}

			rowOffset := func(rowIdx int64) int64 {
				return table.DataStart + rowIdx*int64(rowWidth)
			}

			var body []byte
			var entryCount int64
			if idx.Shape == hci.ShapeImplicit {
				cumul := idx.ImplicitOffsets()
				body = make([]byte, 8*len(cumul))
				for i, c := range cumul {
					binary.BigEndian.PutUint64(body[i*8:], uint64(rowOffset(c)))
				}
				entryCount = int64(len(cumul))
			} else {
				pixels, cumulative := idx.ExplicitEntries()
				body = make([]byte, 16*len(pixels))
				for i := range pixels {
					binary.BigEndian.PutUint64(body[i*16:], uint64(pixels[i]))
					binary.BigEndian.PutUint64(body[i*16+8:], uint64(rowOffset(cumulative[i])))
				}
				entryCount = int64(len(pixels))
			}

			primaryHdr := minimalPrimaryHeader()
			tableHdr := hciFileHeader(fp, depth, lonCol, latCol, idx.Shape, entryCount)

			if out == "" {
				out = path + ".hcidx.fits"
			}
			if err := writeAll(out, primaryHdr, tableHdr, body, zeroPad(int64(len(body)))); err != nil {
				return err
			}
			logger.Info().Str("path", out).Int64("totalRows", idx.TotalRows()).Msg("HCI index written")
			return nil
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", -1, "BINTABLE HDU index (default: first BINTABLE found)")
	cmd.Flags().StringVar(&lonCol, "lon", "", "longitude column name (required)")
	cmd.Flags().StringVar(&latCol, "lat", "", "latitude column name (required)")
	cmd.Flags().BoolVar(&degrees, "degrees", true, "lon/lat columns are in degrees (false: radians)")
	cmd.Flags().Uint8Var(&depth, "depth", 12, "HEALPix depth to index at (must match the sort depth)")
	cmd.Flags().Float64Var(&ratio, "ratio", 0.25, "explicit/implicit shape threshold (0: always explicit, 1: always implicit)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output HCI FITS file (default: <file>.hcidx.fits)")
	cmd.MarkFlagRequired("lon")
	cmd.MarkFlagRequired("lat")
	return cmd
}

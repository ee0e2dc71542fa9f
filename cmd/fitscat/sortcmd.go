package main

import (
	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat"
	"github.com/cds-astro/fitscat/internal/hsort"
)

func newSortCmd() *cobra.Command {
	var (
		hduIndex int
		lonCol   string
		latCol   string
		degrees  bool
		depth    uint8
		out      string
		external string
	)
	cmd := &cobra.Command{
		Use:   "sort <file>",
		Short: "Reorder a BINTABLE's rows into increasing HEALPix pixel order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			mf, primary, table, schema, err := openTable(path, hduIndex)
			if err != nil {
				return err
			}
			defer mf.Close()

			main, heap := mainAndHeap(table)
			keyer, err := newHealpixKeyer(schema, heap, lonCol, latCol, degrees, depth)
			if err != nil {
				return err
			}
			nRows := table.Header.RowCount
			rowWidth := schema.RowWidth

			if external != "" {
				if err := hsort.SortExternalToFile(main, rowWidth, nRows, keyer.RowKeyFunc(), external); err != nil {
					return err
				}
				logger.Info().Str("path", external).Int64("rows", nRows).Msg("sorted main table written")
				return nil
			}

			sorted, err := hsort.Sort(main, rowWidth, nRows, keyer.RowKeyFunc())
			if err != nil {
				return err
			}

			data := mf.Bytes()
			primaryBytes := verbatimHDU(data, primary)
			tableHeaderBytes := hduHeaderBytes(data, table)

			if out == "" {
				out = path + ".sorted"
			}
			return writeAll(out, primaryBytes, tableHeaderBytes, sorted, zeroPad(int64(len(sorted))), heap, zeroPad(int64(len(heap))))
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", -1, "BINTABLE HDU index (default: first BINTABLE found)")
	cmd.Flags().StringVar(&lonCol, "lon", "", "longitude column name (required)")
	cmd.Flags().StringVar(&latCol, "lat", "", "latitude column name (required)")
	cmd.Flags().BoolVar(&degrees, "degrees", true, "lon/lat columns are in degrees (false: radians)")
	cmd.Flags().Uint8Var(&depth, "depth", 12, "HEALPix depth to sort by")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output FITS file (default: <file>.sorted)")
	cmd.Flags().StringVar(&external, "external-main", "", "write only the sorted raw main table to this path instead of a full FITS file (large-catalog path)")
	cmd.MarkFlagRequired("lon")
	cmd.MarkFlagRequired("lat")
	return cmd
}

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat/internal/csvpipe"
)

func newCSVCmd() *cobra.Command {
	var (
		hduIndex    int
		out         string
		workers     int
		chunkRows   int
		copyChunks  bool
		noHeader    bool
		votablePath string
	)
	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Convert a BINTABLE's rows to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			mf, _, table, schema, err := openTable(path, hduIndex)
			if err != nil {
				return err
			}
			defer mf.Close()

			if votablePath != "" {
				if err := mergeVOTableInto(votablePath, table.Header.Columns); err != nil {
					return err
				}
			}

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			main, heap := mainAndHeap(table)
			l := logger
			opts := csvpipe.Options{
				NWorkers:   workers,
				ChunkRows:  chunkRows,
				CopyChunks: copyChunks,
				NoHeader:   noHeader,
				Log:        &l,
			}
			return csvpipe.Convert(context.Background(), schema, main, heap, colNames(schema), w, opts)
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", -1, "BINTABLE HDU index (default: first BINTABLE found)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: stdout)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "worker goroutines (1 disables the parallel pipeline)")
	cmd.Flags().IntVar(&chunkRows, "chunk-rows", 1024, "rows handed to a worker per message")
	cmd.Flags().BoolVar(&copyChunks, "copy-chunks", false, "copy each chunk before handing it to a worker (rotational-disk input)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "suppress the CSV header line")
	cmd.Flags().StringVar(&votablePath, "votable", "", "VOTable XML metadata file to merge into the column schema")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat"
	"github.com/cds-astro/fitscat/internal/votable"
)

func newInfoCmd() *cobra.Command {
	var hduIndex int
	var votablePath string
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Print a BINTABLE extension's geometry and per-column keywords",
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

			fmt.Printf("rows=%d cols=%d rowbytes=%d heap=%d\n", table.Header.RowCount, table.Header.NFields, table.Header.RowByteSize, table.Header.HeapSize)
			for i, col := range table.Header.Columns {
				fs := schema.Fields[i]
				fmt.Printf("%3d %-16s form=%-10s width=%-4d repeat=%-6d unit=%-10s ucd=%-24s", col.Index, col.Name, col.Form, fs.StoredWidth, fs.Repeat, col.Unit, col.UCD)
				if col.Null != nil {
					fmt.Printf(" null=%d", *col.Null)
				}
				if col.Scale != nil {
					fmt.Printf(" scale=%g", *col.Scale)
				}
				if col.Zero != nil {
					fmt.Printf(" zero=%g", *col.Zero)
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", -1, "BINTABLE HDU index (default: first BINTABLE found)")
	cmd.Flags().StringVar(&votablePath, "votable", "", "VOTable XML metadata file to merge into the column schema before reporting")
	return cmd
}

func mergeVOTableInto(path string, cols []fits.Column) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fitscat: reading VOTable %s: %w", path, err)
	}
	vot, err := votable.Parse(data)
	if err != nil {
		return fmt.Errorf("fitscat: parsing VOTable %s: %w", path, err)
	}
	return vot.MergeInto(cols)
}

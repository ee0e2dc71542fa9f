package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat"
)

func newStructCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "struct <file>",
		Short: "List the HDUs of a FITS file and their geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			mf, hdus, err := fits.OpenAndParse(path)
			if err != nil {
				return err
			}
			defer mf.Close()

			for i, h := range hdus {
				hdr := h.Header
				fmt.Printf("HDU %d: %-8s start=%d naxis=%v", i, hdr.Class, h.Start, hdr.Naxis)
				if hdr.Class == fits.ClassBinTable || hdr.Class == fits.ClassAsciiTable {
					fmt.Printf(" rows=%d cols=%d rowbytes=%d heap=%d", hdr.RowCount, hdr.NFields, hdr.RowByteSize, hdr.HeapSize)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

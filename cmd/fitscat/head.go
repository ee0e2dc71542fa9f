package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat"
)

func newHeadCmd() *cobra.Command {
	var hduIndex int
	cmd := &cobra.Command{
		Use:   "head <file>",
		Short: "Dump one HDU's keyword records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			mf, hdus, err := fits.OpenAndParse(path)
			if err != nil {
				return err
			}
			defer mf.Close()
			if hduIndex < 0 || hduIndex >= len(hdus) {
				return fmt.Errorf("fitscat: HDU index %d out of range (file has %d HDUs)", hduIndex, len(hdus))
			}
			for _, rec := range hdus[hduIndex].Records {
				name := rec.Name()
				if name == "" {
					continue
				}
				vc := strings.TrimRight(string(rec.ValueComment()), " ")
				if rec.HasValueIndicator() {
					fmt.Printf("%-8s= %s\n", name, vc)
				} else {
					fmt.Printf("%-8s  %s\n", name, vc)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hduIndex, "hdu", 0, "HDU index to dump (0 is the primary)")
	return cmd
}

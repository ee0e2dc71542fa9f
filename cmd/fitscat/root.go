package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat/internal/fitslog"
)

var (
	verbose bool
	logger  zerolog.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fitscat",
		Short:         "Inspect, convert, sort and index FITS binary-table catalogs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = fitslog.Default(verbose)
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	cmd.AddCommand(
		newStructCmd(),
		newHeadCmd(),
		newInfoCmd(),
		newCSVCmd(),
		newSortCmd(),
		newMkidxCmd(),
		newQidxCmd(),
		newMkhipsCmd(),
		newQhipsCmd(),
	)
	return cmd
}

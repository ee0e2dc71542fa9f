// Command fitscat is the CLI surface over the fitscat toolkit: inspecting
// FITS files (struct, head, info), converting BINTABLEs to CSV, sorting and
// spatially indexing a catalog, and building/querying a HiPS tile
// hierarchy from it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

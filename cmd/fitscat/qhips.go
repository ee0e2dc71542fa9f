package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cds-astro/fitscat"
	"github.com/cds-astro/fitscat/internal/bintable"
	"github.com/cds-astro/fitscat/internal/hips"
	"github.com/cds-astro/fitscat/internal/kvindex"
)

// qhipsAction mirrors qhips.rs's Action enum: one read-only operation
// against an already-built HiPS collection directory.
type qhipsAction struct {
	kind  string // properties, metadata, moc, allsky, tile, list, info
	depth uint8
	hash  uint64
}

func runQhipsAction(dir string, a qhipsAction, w io.Writer) error {
	switch a.kind {
	case "properties":
		return qhipsProperties(dir, w)
	case "metadata":
		return qhipsMetadata(dir, w)
	case "moc":
		return qhipsMoc(dir, w)
	case "allsky":
		return qhipsTileRows(dir, a.depth, -1, w)
	case "tile":
		return qhipsTileRows(dir, a.depth, int64(a.hash), w)
	case "list":
		return qhipsList(dir, w)
	case "info":
		_, err := io.WriteString(w, landingPageHTML)
		return err
	default:
		return fmt.Errorf("fitscat: unknown qhips action %q", a.kind)
	}
}

func checkExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("fitscat: file not found: %s", path)
	}
	return nil
}

func qhipsProperties(dir string, w io.Writer) error {
	path := filepath.Join(dir, "properties.toml")
	if err := checkExists(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func qhipsMoc(dir string, w io.Writer) error {
	path := filepath.Join(dir, "moc.fits")
	if err := checkExists(path); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// qhipsMetadata builds a minimal VOTABLE header from the order-1 allsky
// layer's BINTABLE column schema, matching print_metadata's fallback path
// (this toolkit's layer files carry no embedded VOTable header of their
// own, so there is no "primary HDU already has one" branch to take).
func qhipsMetadata(dir string, w io.Writer) error {
	path := filepath.Join(dir, "hips.cat.layer1.fits")
	if err := checkExists(path); err != nil {
		return err
	}
	mf, hdus, err := fits.OpenAndParse(path)
	if err != nil {
		return err
	}
	defer mf.Close()
	if len(hdus) < 2 || !hdus[1].IsBinTable() {
		return fmt.Errorf("fitscat: %s has no BINTABLE extension", path)
	}
	cols := hdus[1].Header.Columns

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<VOTABLE version="1.4" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">` + "\n")
	b.WriteString("  <RESOURCE>\n    <TABLE>\n")
	for _, c := range cols {
		b.WriteString(fmt.Sprintf(`      <FIELD name=%q datatype=%q`, c.Name, votDatatype(c.Form)))
		if c.Unit != "" {
			b.WriteString(fmt.Sprintf(` unit=%q`, c.Unit))
		}
		if c.UCD != "" {
			b.WriteString(fmt.Sprintf(` ucd=%q`, c.UCD))
		}
		b.WriteString("/>\n")
	}
	b.WriteString("    </TABLE>\n  </RESOURCE>\n</VOTABLE>\n")
	_, err = w.Write(b.Bytes())
	return err
}

// votDatatype maps a TFORM letter to its VOTable datatype name.
func votDatatype(tform string) string {
	if tform == "" {
		return "char"
	}
	switch tform[len(tform)-1] {
	case 'L':
		return "boolean"
	case 'B':
		return "unsignedByte"
	case 'I':
		return "short"
	case 'J':
		return "int"
	case 'K':
		return "long"
	case 'E':
		return "float"
	case 'D':
		return "double"
	case 'A':
		return "char"
	default:
		return "char"
	}
}

// qhipsTileRows prints one tile's (or, for hash < 0, an entire allsky
// layer's) rows as tab-separated values with a header line, grounded on
// qhips.rs's print_allsky/print_tile_data.
func qhipsTileRows(dir string, depth uint8, hash int64, w io.Writer) error {
	layerPath := filepath.Join(dir, fmt.Sprintf("hips.cat.layer%d.fits", depth))
	if err := checkExists(layerPath); err != nil {
		return err
	}
	mf, hdus, err := fits.OpenAndParse(layerPath)
	if err != nil {
		return err
	}
	defer mf.Close()
	if len(hdus) < 2 || !hdus[1].IsBinTable() {
		return fmt.Errorf("fitscat: %s has no BINTABLE extension", layerPath)
	}
	table := hdus[1]
	schema, _, err := bintable.BuildRowSchema(table.Header)
	if err != nil {
		return err
	}
	main, heap := mainAndHeap(table)
	rowWidth := schema.RowWidth

	start, end := int64(0), table.Header.RowCount
	if hash >= 0 {
		idxPath := filepath.Join(dir, fmt.Sprintf("hips.cat.layer%d.hcidx.fits", depth))
		if err := checkExists(idxPath); err != nil {
			return fmt.Errorf("fitscat: tile lookup requires a per-layer index; build one with \"fitscat mkidx %s\": %w", layerPath, err)
		}
		idx, _, _, err := loadHCIIndex(idxPath, table.DataStart, rowWidth)
		if err != nil {
			return err
		}
		start, end = idx.GetAtDepth(depth, hash)
	}

	for i, f := range schema.Fields {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, f.Name)
	}
	fmt.Fprintln(w)

	csv := bintable.NewCSVVisitor()
	for r := start; r < end; r++ {
		if err := bintable.DecodeRow(schema, rowAt(main, rowWidth, r), heap, csv); err != nil {
			return err
		}
	}
	tsv := bytes.ReplaceAll(csv.Buf.Bytes(), []byte{','}, []byte{'\t'})
	if _, err := w.Write(tsv); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}

// qhipsList prints the tiles.bstree stats index as
// "depth,cell,cumul_count,tot_count" lines, matching print_tiles_stats.
func qhipsList(dir string, w io.Writer) error {
	path := filepath.Join(dir, "tiles.bstree")
	if err := checkExists(path); err != nil {
		return err
	}
	r, err := kvindex.Open(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "depth,cell,cumul_count,tot_count")
	var werr error
	r.Each(func(key uint64, value []byte) bool {
		depth, pix := hips.FromUniq(key)
		v := binary.BigEndian.Uint64(value)
		totCount := v >> 40
		cumulCount := v & 0x000000FFFFFFFFFF
		_, werr = fmt.Fprintf(w, "%d,%d,%d,%d\n", depth, pix, cumulCount, totCount)
		return werr == nil
	})
	return werr
}

const landingPageHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, height=device-height, initial-scale=1.0, user-scalable=no">
  <script src="https://aladin.cds.unistra.fr/hips-templates/hips-landing-page.js" type="text/javascript"></script>
  <noscript>Please enable Javascript to view this page.</noscript>
</head>
<body></body>
<script type="text/javascript">
  let root = new URL(window.location.href).pathname;
  if (root.endsWith("/") || root.endsWith("index.html")) {
    root = root.substring(0, root.lastIndexOf("/", root.length) + 1);
  } else {
    root = root + '/';
  }
  buildLandingPage({url: root});
</script>
</html>
`

// parseCGIPath maps a request path under a HiPS collection's URL root onto
// the equivalent qhipsAction, the routing print_landing_page's comment
// documents clients expect: Norder{d}/Allsky.tsv, Norder{d}/Dir{n}/Npix{h}.tsv,
// properties, metadata.xml, moc.fits.
func parseCGIPath(p string) (qhipsAction, error) {
	p = strings.TrimPrefix(p, "/")
	switch {
	case p == "" || p == "index.html":
		return qhipsAction{kind: "info"}, nil
	case p == "properties":
		return qhipsAction{kind: "properties"}, nil
	case p == "metadata.xml":
		return qhipsAction{kind: "metadata"}, nil
	case p == "moc.fits":
		return qhipsAction{kind: "moc"}, nil
	case p == "list":
		return qhipsAction{kind: "list"}, nil
	}
	var depth int
	if n, err := fmt.Sscanf(p, "Norder%d/Allsky.tsv", &depth); err == nil && n == 1 {
		return qhipsAction{kind: "allsky", depth: uint8(depth)}, nil
	}
	var dirNum int
	var hash uint64
	if n, _ := fmt.Sscanf(p, "Norder%d/Dir%d/Npix%d.tsv", &depth, &dirNum, &hash); n == 3 {
		return qhipsAction{kind: "tile", depth: uint8(depth), hash: hash}, nil
	}
	return qhipsAction{}, fmt.Errorf("fitscat: unrecognized qhips path %q", p)
}

func newQhipsCmd() *cobra.Command {
	var (
		dir      string
		action   string
		depthArg uint8
		hashArg  uint64
		cgi      bool
		addr     string
	)
	cmd := &cobra.Command{
		Use:   "qhips",
		Short: "Query an already-built HiPS catalog collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cgi {
				return serveCGI(dir, addr)
			}
			a := qhipsAction{kind: action, depth: depthArg, hash: hashArg}
			return runQhipsAction(dir, a, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "HiPS collection directory built by mkhips")
	cmd.Flags().StringVar(&action, "action", "info", "properties, metadata, moc, allsky, tile, list, or info")
	cmd.Flags().Uint8Var(&depthArg, "depth", 0, "tile order (for allsky/tile)")
	cmd.Flags().Uint64Var(&hashArg, "hash", 0, "tile pixel index (for tile)")
	cmd.Flags().BoolVar(&cgi, "cgi", false, "serve the collection over HTTP instead of running one action")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address in --cgi mode")
	return cmd
}

func serveCGI(dir, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		a, err := parseCGIPath(req.URL.Path)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		switch a.kind {
		case "metadata":
			rw.Header().Set("Content-Type", "application/xml")
		case "moc":
			rw.Header().Set("Content-Type", "application/fits")
			rw.Header().Set("Content-Disposition", `attachment; filename="moc.fits"`)
		case "info":
			rw.Header().Set("Content-Type", "text/html")
		default:
			rw.Header().Set("Content-Type", "text/plain")
		}
		if err := runQhipsAction(dir, a, rw); err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
		}
	})
	logger.Info().Str("addr", addr).Str("dir", dir).Msg("qhips CGI server listening")
	return http.ListenAndServe(addr, mux)
}

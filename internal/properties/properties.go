// Package properties reads and writes the IVOA HiPS 1.0 properties.toml
// file describing one HiPS collection: identifiers, coordinate frame, tile
// format, depth, and the coverage/statistics fields the catalog builder
// computes.
package properties

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Properties is the subset of IVOA HiPS 1.0 keys fitscat's catalog builder
// emits. Load ignores keys not listed here; Extra is neither filled by
// Load nor written by Write.
type Properties struct {
	CreatorDID     string `toml:"creator_did"`
	ObsTitle       string `toml:"obs_title"`
	ObsDescription string `toml:"obs_description,omitempty"`
	DataProduct    string `toml:"dataproduct_type"`
	HipsVersion    string `toml:"hips_version"`
	HipsFrame      string `toml:"hips_frame"`
	HipsOrder      int    `toml:"hips_order"`
	HipsOrderMin   int    `toml:"hips_order_min"`
	HipsTileFormat string `toml:"hips_tile_format"`
	HipsStatus     string `toml:"hips_status"`
	HipsCatNRows   int64  `toml:"hips_cat_nrows"`
	HipsBuilderID  string `toml:"hips_builder,omitempty"`

	// Coverage summary, derived from the builder's leaf-tile MOC: the
	// sky position a client should center its initial view on, the field
	// of view that view should span, and the fraction of the sky covered.
	HipsInitialRA  float64 `toml:"hips_initial_ra,omitempty"`
	HipsInitialDec float64 `toml:"hips_initial_dec,omitempty"`
	HipsInitialFov float64 `toml:"hips_initial_fov,omitempty"`
	MocSqDegApprox float64 `toml:"moc_sky_fraction,omitempty"`

	Extra map[string]interface{} `toml:"-"`
}

// Load reads and decodes a properties.toml file.
func Load(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("properties: reading %s: %w", path, err)
	}
	var p Properties
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("properties: decoding %s: %w", path, err)
	}
	return &p, nil
}

// Write renders p as TOML and writes it to path, overwriting any existing
// file, matching the one-properties.toml-per-HiPS-collection convention.
func Write(path string, p *Properties) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("properties: encoding: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("properties: writing %s: %w", path, err)
	}
	return nil
}

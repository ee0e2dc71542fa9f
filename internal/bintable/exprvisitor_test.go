package bintable

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-astro/fitscat"
	"github.com/cds-astro/fitscat/internal/expreval"
)

func TestExprVisitorEnvReflectsDecodedRow(t *testing.T) {
	h := basicBinTableHeader([]fits.Column{
		{Index: 1, Name: "MAG", Form: "1E"},
		{Index: 2, Name: "NAME", Form: "4A"},
	}, 8)
	schema, _, err := BuildRowSchema(h)
	require.NoError(t, err)

	row := make([]byte, 8)
	fits.BigEndian.PutUint32(row[0:4], math.Float32bits(12.5))
	copy(row[4:8], "star")

	v := NewExprVisitor([]string{"MAG", "NAME"})
	require.NoError(t, DecodeRow(schema, row, nil, v))

	env := v.Env()
	assert.InDelta(t, 12.5, env["MAG"], 1e-4)
	assert.Equal(t, "star", env["NAME"])

	prog, err := expreval.CompileBool(`MAG > 10.0`, env)
	require.NoError(t, err)
	ok, err := prog.EvalBool(env)
	require.NoError(t, err)
	assert.True(t, ok)
}

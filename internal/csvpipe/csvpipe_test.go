package csvpipe

import (
	"bytes"
	"context"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-astro/fitscat/internal/bintable"
)

func int32Schema() *bintable.RowSchema {
	return &bintable.RowSchema{
		RowWidth: 4,
		Fields: []bintable.FieldSchema{
			{
				Index: 1, Name: "N", StartByte: 0, StoredWidth: 4, Repeat: 1,
				Storage: bintable.KindI32, Promoted: bintable.KindI32,
				HasTrivialScale: true, Scale: 1, Zero: 0,
			},
		},
	}
}

func buildRows(vals []int32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.BigEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func expectedCSV(vals []int32, header bool) string {
	var b strings.Builder
	if header {
		b.WriteString("N\n")
	}
	for _, v := range vals {
		b.WriteString(strconv.Itoa(int(v)))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestConvertSequentialMatchesExpected(t *testing.T) {
	schema := int32Schema()
	vals := []int32{1, 2, 3, 4, 5}
	rows := buildRows(vals)

	var out bytes.Buffer
	err := Convert(context.Background(), schema, rows, nil, []string{"N"}, &out, Options{NWorkers: 1})
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(vals, true), out.String())
}

func TestConvertParallelPreservesRowOrder(t *testing.T) {
	schema := int32Schema()
	var vals []int32
	for i := int32(0); i < 97; i++ {
		vals = append(vals, i)
	}
	rows := buildRows(vals)

	var out bytes.Buffer
	err := Convert(context.Background(), schema, rows, nil, []string{"N"}, &out, Options{
		NWorkers:  4,
		ChunkRows: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(vals, true), out.String())
}

func TestConvertParallelWithCopyChunks(t *testing.T) {
	schema := int32Schema()
	var vals []int32
	for i := int32(0); i < 40; i++ {
		vals = append(vals, i*2)
	}
	rows := buildRows(vals)

	var out bytes.Buffer
	err := Convert(context.Background(), schema, rows, nil, nil, &out, Options{
		NWorkers:   3,
		ChunkRows:  4,
		CopyChunks: true,
		NoHeader:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, expectedCSV(vals, false), out.String())
}

// Package csvpipe converts a BINTABLE's rows to CSV text using a bounded
// number of worker goroutines, preserving row order. The pipeline has three
// stages wired by two ranks of bounded channels: one producer goroutine
// slices the main table into row chunks and round-robins them across
// nWorkers channels; each worker decodes and renders its chunk to CSV text;
// one sink goroutine reads the rendered chunks back in the same round-robin
// order and writes them out, so interleaving on the worker side never
// reorders the output.
package csvpipe

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cds-astro/fitscat/internal/bintable"
)

// Options configures a CSV conversion run.
type Options struct {
	// NWorkers is the number of worker goroutines; 1 disables the
	// channel pipeline and decodes inline.
	NWorkers int
	// ChunkRows is the number of rows handed to a worker per message.
	ChunkRows int
	// CopyChunks forces each chunk to be copied into a freshly allocated
	// slice before being handed to a worker, trading an extra copy for
	// strictly sequential reads of the source bytes — worthwhile on a
	// rotational disk where the source is a cold mmap, pointless on an
	// SSD or an already-resident buffer.
	CopyChunks bool
	// NoHeader suppresses the CSV header line.
	NoHeader bool
	// Log receives row-level decode-error warnings; a nil Log discards
	// them.
	Log *zerolog.Logger
}

// Convert renders a BINTABLE's rows as CSV to w, reading row bytes from
// mainTable (schema.RowWidth-aligned) and variable-length array data from
// heap. colNames supplies the header line in column order.
func Convert(ctx context.Context, schema *bintable.RowSchema, mainTable, heap []byte, colNames []string, w io.Writer, opts Options) error {
	if opts.Log == nil {
		nop := zerolog.Nop()
		opts.Log = &nop
	}
	nRows := int64(len(mainTable)) / int64(schema.RowWidth)
	bw := bufio.NewWriter(w)

	if !opts.NoHeader {
		for i, name := range colNames {
			if i > 0 {
				bw.WriteByte(',')
			}
			if name == "" {
				fmt.Fprintf(bw, "col_%d", i+1)
			} else {
				bw.WriteString(name)
			}
		}
		bw.WriteByte('\n')
	}

	if opts.NWorkers <= 1 {
		if err := convertSequential(schema, mainTable, heap, bw, opts.Log); err != nil {
			return err
		}
		return bw.Flush()
	}
	if err := convertParallel(ctx, schema, mainTable, heap, nRows, bw, opts); err != nil {
		return err
	}
	return bw.Flush()
}

func convertSequential(schema *bintable.RowSchema, mainTable, heap []byte, w *bufio.Writer, log *zerolog.Logger) error {
	v := bintable.NewCSVVisitor()
	rowWidth := schema.RowWidth
	for off := 0; off+rowWidth <= len(mainTable); off += rowWidth {
		row := mainTable[off : off+rowWidth]
		if err := bintable.DecodeRow(schema, row, heap, v); err != nil {
			log.Warn().Err(err).Int("offset", off).Msg("skipping row: decode error")
		}
	}
	if _, err := w.Write(v.Buf.Bytes()); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

type chunkMsg struct {
	rows []byte
}

type renderedMsg struct {
	text []byte
}

func convertParallel(ctx context.Context, schema *bintable.RowSchema, mainTable, heap []byte, nRows int64, w *bufio.Writer, opts Options) error {
	rowWidth := schema.RowWidth
	n := opts.NWorkers
	chunkRows := opts.ChunkRows
	if chunkRows <= 0 {
		chunkRows = 1024
	}
	chunkBytes := chunkRows * rowWidth

	stage1 := make([]chan chunkMsg, n)
	stage2 := make([]chan renderedMsg, n)
	for i := range stage1 {
		stage1[i] = make(chan chunkMsg, 1)
		stage2[i] = make(chan renderedMsg, 1)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			for _, ch := range stage1 {
				close(ch)
			}
		}()
		worker := 0
		for off := 0; off < len(mainTable); off += chunkBytes {
			end := off + chunkBytes
			if end > len(mainTable) {
				end = len(mainTable)
			}
			chunk := mainTable[off:end]
			if opts.CopyChunks {
				cp := make([]byte, len(chunk))
				copy(cp, chunk)
				chunk = cp
			}
			select {
			case stage1[worker] <- chunkMsg{rows: chunk}:
			case <-ctx.Done():
				return ctx.Err()
			}
			worker = (worker + 1) % n
		}
		return nil
	})

	for i := 0; i < n; i++ {
		in := stage1[i]
		out := stage2[i]
		g.Go(func() error {
			defer close(out)
			for msg := range in {
				v := bintable.NewCSVVisitor()
				for off := 0; off+rowWidth <= len(msg.rows); off += rowWidth {
					row := msg.rows[off : off+rowWidth]
					if err := bintable.DecodeRow(schema, row, heap, v); err != nil {
						opts.Log.Warn().Err(err).Msg("skipping row: decode error")
					}
				}
				v.Buf.WriteByte('\n')
				select {
				case out <- renderedMsg{text: v.Buf.Bytes()}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		done := make([]bool, n)
		remaining := n
		worker := 0
		for remaining > 0 {
			if !done[worker] {
				msg, ok := <-stage2[worker]
				if !ok {
					done[worker] = true
					remaining--
				} else if _, err := w.Write(msg.text); err != nil {
					return fmt.Errorf("csvpipe: writing output: %w", err)
				}
			}
			worker = (worker + 1) % n
		}
		return nil
	})

	return g.Wait()
}

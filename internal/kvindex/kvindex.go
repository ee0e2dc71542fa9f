// Package kvindex implements a minimal sorted, immutable on-disk key/value
// file for HiPS per-tile statistics: entries keyed by NUNIQ-packed HEALPix
// index, written once in increasing key order, then looked up by exact key
// or range-scanned in key order.
//
// File layout mirrors the write-once sorted-block convention seen across
// this pack's embedded-storage examples (a sequence of sorted entries
// followed by a sparse index and a fixed footer), simplified down to fixed
// 8-byte keys since a NUNIQ value already IS the sort key:
//
//	[ entries: (key uint64 BE, valueLen uint32 BE, value []byte) ... ]
//	[ sparse index: (key uint64 BE, offset uint64 BE) ...          ]
//	[ footer: indexOffset uint64 BE, indexCount uint64 BE, entryCount uint64 BE ]
//
// No embedded sorted-file library ships in this module's dependency set
// (see DESIGN.md for what was considered and why), so this is a
// from-scratch writer/reader sized to exactly what the HiPS builder needs.
package kvindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

// sparseIndexStride is how many entries separate consecutive sparse-index
// checkpoints; a lookup does one binary search over the sparse index, then
// a linear scan of at most this many entries.
const sparseIndexStride = 64

// Writer appends key/value entries in strictly increasing key order and
// finalizes the sparse index and footer on Close.
type Writer struct {
	f       *os.File
	w       *bufio.Writer
	offset  uint64
	lastKey uint64
	hasLast bool
	count   uint64

	sparseKeys    []uint64
	sparseOffsets []uint64
}

// Create opens path for writing a new kvindex file, truncating any
// existing content.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("kvindex: creating %s: %w", path, err)
	}
	return &Writer{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

// Put appends one entry. key must be strictly greater than the previous
// key written.
func (w *Writer) Put(key uint64, value []byte) error {
	if w.hasLast && key <= w.lastKey {
		return fmt.Errorf("kvindex: keys must be strictly increasing, got %d after %d", key, w.lastKey)
	}
	if w.count%sparseIndexStride == 0 {
		w.sparseKeys = append(w.sparseKeys, key)
		w.sparseOffsets = append(w.sparseOffsets, w.offset)
	}

	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:8], key)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(value)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(value); err != nil {
		return err
	}
	w.offset += uint64(len(hdr)) + uint64(len(value))
	w.lastKey = key
	w.hasLast = true
	w.count++
	return nil
}

// Close writes the sparse index and footer, then flushes and closes the
// file.
func (w *Writer) Close() error {
	indexOffset := w.offset
	for i := range w.sparseKeys {
		var rec [16]byte
		binary.BigEndian.PutUint64(rec[0:8], w.sparseKeys[i])
		binary.BigEndian.PutUint64(rec[8:16], w.sparseOffsets[i])
		if _, err := w.w.Write(rec[:]); err != nil {
			return err
		}
	}
	var footer [24]byte
	binary.BigEndian.PutUint64(footer[0:8], indexOffset)
	binary.BigEndian.PutUint64(footer[8:16], uint64(len(w.sparseKeys)))
	binary.BigEndian.PutUint64(footer[16:24], w.count)
	if _, err := w.w.Write(footer[:]); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

// Reader opens a finalized kvindex file for exact-key lookup and
// in-order iteration.
type Reader struct {
	data        []byte
	indexOffset uint64
	indexCount  uint64
	entryCount  uint64
	sparseKeys  []uint64
	sparseOffs  []uint64
}

// Open reads path fully into memory (HiPS tile-stat files are small) and
// parses its footer and sparse index.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kvindex: reading %s: %w", path, err)
	}
	if len(data) < 24 {
		return nil, fmt.Errorf("kvindex: %s too short to contain a footer", path)
	}
	footer := data[len(data)-24:]
	r := &Reader{
		data:        data,
		indexOffset: binary.BigEndian.Uint64(footer[0:8]),
		indexCount:  binary.BigEndian.Uint64(footer[8:16]),
		entryCount:  binary.BigEndian.Uint64(footer[16:24]),
	}
	idxStart := r.indexOffset
	idxEnd := uint64(len(data)) - 24
	for off := idxStart; off < idxEnd; off += 16 {
		r.sparseKeys = append(r.sparseKeys, binary.BigEndian.Uint64(data[off:off+8]))
		r.sparseOffs = append(r.sparseOffs, binary.BigEndian.Uint64(data[off+8:off+16]))
	}
	return r, nil
}

// EntryCount returns the number of key/value pairs in the file.
func (r *Reader) EntryCount() uint64 { return r.entryCount }

// Get returns the value for key, or (nil, false) if absent.
func (r *Reader) Get(key uint64) ([]byte, bool) {
	i := sort.Search(len(r.sparseKeys), func(i int) bool { return r.sparseKeys[i] > key })
	if i == 0 {
		return nil, false
	}
	off := r.sparseOffs[i-1]
	for off < r.indexOffset {
		k := binary.BigEndian.Uint64(r.data[off : off+8])
		vlen := binary.BigEndian.Uint32(r.data[off+8 : off+12])
		valStart := off + 12
		valEnd := valStart + uint64(vlen)
		if k == key {
			return r.data[valStart:valEnd], true
		}
		if k > key {
			return nil, false
		}
		off = valEnd
	}
	return nil, false
}

// Each calls fn for every entry in increasing key order, stopping early if
// fn returns false.
func (r *Reader) Each(fn func(key uint64, value []byte) bool) {
	off := uint64(0)
	for off < r.indexOffset {
		k := binary.BigEndian.Uint64(r.data[off : off+8])
		vlen := binary.BigEndian.Uint32(r.data[off+8 : off+12])
		valStart := off + 12
		valEnd := valStart + uint64(vlen)
		if !fn(k, r.data[valStart:valEnd]) {
			return
		}
		off = valEnd
	}
}

// Copyright 2014 Shahriar Iravanian (siravan@svtsim.com).  All rights reserved.
// Use of this source code is governed by a MIT license that can be found in the LICENSE file.

package fits

import "fmt"

// BlockSize is the FITS block granularity: headers occupy a whole number of
// blocks, data is zero-padded to a block boundary.
const BlockSize = 2880

// recordsPerBlock is the number of 80-byte keyword records in one block.
const recordsPerBlock = BlockSize / RecordSize

// HDU is one Header Data Unit: its starting byte offset, its header (both
// the typed view and the raw keyword records, kept for lossless
// re-emission), and a zero-copy slice into the enclosing file's bytes for
// its data block.
type HDU struct {
	Start   int64
	Header  *Header
	Records []*Record
	// DataStart is the byte offset, within the same backing slice as Data
	// was sliced from, of the first data byte.
	DataStart int64
	// Data is the HDU's data slice, of length Header.DataByteSize()
	// (unpadded); it borrows the caller-supplied bytes, never copies them.
	Data []byte
}

// Parse walks data — a complete in-memory FITS byte stream, typically a
// memory-mapped file — yielding HDUs in order. Iteration stops at the first
// error; the returned slice holds whatever HDUs were successfully parsed
// before the failure.
func Parse(data []byte) ([]*HDU, error) {
	var hdus []*HDU
	var offset int64
	for offset < int64(len(data)) {
		hdu, next, err := parseOneHDU(data, offset)
		if err != nil {
			return hdus, err
		}
		hdus = append(hdus, hdu)
		offset = next
	}
	return hdus, nil
}

// parseOneHDU parses the HDU starting at byte offset start within data,
// returning it along with the offset of the next HDU (or len(data) if this
// was the last one).
func parseOneHDU(data []byte, start int64) (*HDU, int64, error) {
	if start+BlockSize > int64(len(data)) {
		return nil, 0, newIOError("", fmt.Errorf("truncated header block at offset %d", start))
	}

	var records []*Record
	cursor := start
	sawEnd := false
	for !sawEnd {
		if cursor+BlockSize > int64(len(data)) {
			return nil, 0, newIOError("", fmt.Errorf("truncated header block at offset %d", cursor))
		}
		block := data[cursor : cursor+BlockSize]
		for i := 0; i < recordsPerBlock; i++ {
			var rec Record
			copy(rec[:], block[i*RecordSize:(i+1)*RecordSize])
			records = append(records, &rec)
			if rec.IsEnd() {
				sawEnd = true
				break
			}
		}
		cursor += BlockSize
		if !sawEnd && cursor >= int64(len(data)) {
			return nil, 0, newIOError("", fmt.Errorf("header starting at %d has no END record", start))
		}
	}

	header, _, err := parseHeader(records)
	if err != nil {
		return nil, 0, err
	}

	dataStart := cursor
	size := header.DataByteSize()
	if size < 0 {
		return nil, 0, newSemanticError("negative data byte size computed for HDU at offset %d", start)
	}
	if dataStart+size > int64(len(data)) {
		return nil, 0, newIOError("", fmt.Errorf("truncated data block at offset %d (need %d bytes)", dataStart, size))
	}

	hdu := &HDU{
		Start:     start,
		Header:    header,
		Records:   records,
		DataStart: dataStart,
		Data:      data[dataStart : dataStart+size],
	}

	padded := padTo2880(size)
	next := dataStart + padded
	return hdu, next, nil
}

// padTo2880 rounds n up to the next multiple of BlockSize.
func padTo2880(n int64) int64 {
	if n%BlockSize == 0 {
		return n
	}
	return n + (BlockSize - n%BlockSize)
}

// IsBinTable reports whether this HDU is a BINTABLE extension.
func (h *HDU) IsBinTable() bool { return h.Header.Class == ClassBinTable }

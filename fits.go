// Copyright 2014 Shahriar Iravanian (siravan@svtsim.com).  All rights reserved.
// Use of this source code is governed by a MIT license that can be found in the LICENSE file.
//
// Package fits reads the Flexible Image Transport System binary format: the
// blocked 2880-byte file structure, the 80-byte keyword-record grammar, and
// the five header variants (primary, image, ASCII table, binary table,
// unknown extension). It exposes each Header Data Unit without copying
// bytes, borrowing slices of the caller-supplied backing storage (typically
// a memory-mapped file).
//
// This package is based on version 3.0 of the FITS standard:
//
//	Pence W.D., Chiappetti L., Page C. G., Shaw R. A., Stobie E. Definition
//	of the Flexible Image Transport System (FITS), version 3.0.
//	A&A 524, A42 (2010).
//
// Package fits covers the structural layer only: keyword records, headers,
// the keyword codec, the header model, and the HDU iterator. Binary-table
// row decoding, the HEALPix-sorted pipeline, and the HiPS catalog builder
// live in the internal subpackages and are the harder engineering this
// module exists to demonstrate.
package fits

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// MappedFile is a memory-mapped FITS file. The mapping is read-only and
// lives for the lifetime of the MappedFile; callers must Close it once all
// HDU slices derived from it are no longer needed.
type MappedFile struct {
	f    *os.File
	m    mmap.MMap
	Path string
}

// OpenFile memory-maps path and returns the mapping; use Bytes to obtain the
// backing slice to pass to Parse.
func OpenFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newIOError(path, err)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, newIOError(path, err)
	}
	return &MappedFile{f: f, m: m, Path: path}, nil
}

// Bytes returns the mapped file's contents as a byte slice, valid until
// Close is called.
func (mf *MappedFile) Bytes() []byte { return mf.m }

// Len returns the mapped file's length in bytes.
func (mf *MappedFile) Len() int64 { return int64(len(mf.m)) }

// Close unmaps the file and closes its descriptor.
func (mf *MappedFile) Close() error {
	err := mf.m.Unmap()
	cerr := mf.f.Close()
	if err != nil {
		return newIOError(mf.Path, err)
	}
	if cerr != nil {
		return newIOError(mf.Path, cerr)
	}
	return nil
}

// OpenAndParse is a convenience wrapper combining OpenFile and Parse; the
// returned MappedFile must still be closed by the caller once the HDUs are
// no longer needed, since they borrow its backing bytes.
func OpenAndParse(path string) (*MappedFile, []*HDU, error) {
	mf, err := OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	hdus, err := Parse(mf.Bytes())
	if err != nil {
		mf.Close()
		return nil, nil, err
	}
	return mf, hdus, nil
}

// BigEndian groups the big-endian scalar decoders every stored FITS value
// uses, regardless of host endianness. It is exported so internal
// subpackages (bintable, hsort, hci) share one implementation instead of
// duplicating byte-swapping logic.
var BigEndian bigEndian

type bigEndian struct{}

func (bigEndian) Uint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func (bigEndian) Uint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (bigEndian) Uint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

func (be bigEndian) PutUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func (be bigEndian) PutUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func (be bigEndian) PutUint64(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}

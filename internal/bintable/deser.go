package bintable

import (
	"fmt"
	"math"

	"github.com/cds-astro/fitscat"
)

var be = fits.BigEndian

// DecodeRow decodes one row of rowBytes (exactly schema.RowWidth bytes)
// against schema, dispatching each field to the matching Visitor method.
// heapBytes is the table's heap region (nil if PCOUNT==0); variable-length
// array descriptors resolve into it. Returns the first decoding error
// encountered, if any.
func DecodeRow(schema *RowSchema, rowBytes []byte, heapBytes []byte, v Visitor) error {
	if len(rowBytes) != schema.RowWidth {
		return fmt.Errorf("bintable: row width mismatch: got %d bytes, schema expects %d", len(rowBytes), schema.RowWidth)
	}
	v.StartRow()
	for i := range schema.Fields {
		f := &schema.Fields[i]
		fieldBytes := rowBytes[f.StartByte : f.StartByte+f.StoredWidth]
		if err := decodeField(f, fieldBytes, heapBytes, v); err != nil {
			return fmt.Errorf("field %d (%s): %w", f.Index, f.Name, err)
		}
	}
	return nil
}

func decodeField(f *FieldSchema, raw []byte, heap []byte, v Visitor) error {
	if f.IsHeap {
		return decodeHeapField(f, raw, heap, v)
	}
	switch f.Storage {
	case KindASCII:
		return v.VisitASCII(string(raw))
	case KindBool:
		if f.IsArray {
			return v.VisitBoolArray(sliceIter(decodeBoolSlice(raw, f.Repeat)))
		}
		return v.VisitBool(raw[0] == 'T' || raw[0] == 1)
	case KindBit:
		return v.VisitBitArray(bitIter(raw, f.Repeat))
	case KindU8:
		if f.IsArray {
			return v.VisitU8Array(sliceIter(append([]uint8(nil), raw...)))
		}
		return decodeScalarU8(f, raw[0], v)
	case KindI16:
		return decodeI16Family(f, raw, v)
	case KindI32:
		return decodeI32Family(f, raw, v)
	case KindI64:
		return decodeI64Family(f, raw, v)
	case KindF32:
		return decodeF32Family(f, raw, v)
	case KindF64:
		return decodeF64Family(f, raw, v)
	case KindC64:
		return decodeC64(f, raw, v)
	case KindC128:
		return decodeC128(f, raw, v)
	default:
		return fmt.Errorf("unsupported storage kind %d", f.Storage)
	}
}

func decodeBoolSlice(raw []byte, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = raw[i] == 'T' || raw[i] == 1
	}
	return out
}

func bitIter(raw []byte, n int) Iter[bool] {
	i := 0
	return func() (bool, bool) {
		if i >= n {
			return false, false
		}
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		v := raw[byteIdx]&(1<<uint(bitIdx)) != 0
		i++
		return v, true
	}
}

func decodeScalarU8(f *FieldSchema, storage uint8, v Visitor) error {
	isNull := f.Nullable && int64(storage) == f.NullSentinel
	if f.Nullable {
		return v.VisitOptU8(storage, isNull)
	}
	return v.VisitU8(storage)
}

func decodeI16Family(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]int16, f.Repeat)
		for i := range out {
			out[i] = int16(be.Uint16(raw[i*2 : i*2+2]))
		}
		return v.VisitI16Array(sliceIter(out))
	}
	storage := int16(be.Uint16(raw))
	isNull := f.Nullable && int64(storage) == f.NullSentinel
	switch f.Promoted {
	case KindU16:
		u := wrapToUint16(storage, f.Zero)
		if f.Nullable {
			return v.VisitOptU16(u, isNull)
		}
		return v.VisitU16(u)
	case KindF32:
		val := float32(f.Scale)*float32(storage) + float32(f.Zero)
		return v.VisitF32(val)
	default:
		if f.Nullable {
			return v.VisitOptI16(storage, isNull)
		}
		return v.VisitI16(storage)
	}
}

func decodeI32Family(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]int32, f.Repeat)
		for i := range out {
			out[i] = int32(be.Uint32(raw[i*4 : i*4+4]))
		}
		return v.VisitI32Array(sliceIter(out))
	}
	storage := int32(be.Uint32(raw))
	isNull := f.Nullable && int64(storage) == f.NullSentinel
	switch f.Promoted {
	case KindU32:
		u := wrapToUint32(storage, f.Zero)
		if f.Nullable {
			return v.VisitOptU32(u, isNull)
		}
		return v.VisitU32(u)
	case KindF64:
		val := f.Scale*float64(storage) + f.Zero
		return v.VisitF64(val)
	default:
		if f.Nullable {
			return v.VisitOptI32(storage, isNull)
		}
		return v.VisitI32(storage)
	}
}

func decodeI64Family(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]int64, f.Repeat)
		for i := range out {
			out[i] = int64(be.Uint64(raw[i*8 : i*8+8]))
		}
		return v.VisitI64Array(sliceIter(out))
	}
	storage := int64(be.Uint64(raw))
	isNull := f.Nullable && storage == f.NullSentinel
	switch f.Promoted {
	case KindU64:
		u := wrapToUint64(storage, f.Zero)
		if f.Nullable {
			return v.VisitOptU64(u, isNull)
		}
		return v.VisitU64(u)
	case KindF64:
		val := f.Scale*float64(storage) + f.Zero
		return v.VisitF64(val)
	default:
		if f.Nullable {
			return v.VisitOptI64(storage, isNull)
		}
		return v.VisitI64(storage)
	}
}

func decodeF32Family(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]float32, f.Repeat)
		for i := range out {
			out[i] = math.Float32frombits(be.Uint32(raw[i*4 : i*4+4]))
			if !f.HasTrivialScale {
				out[i] = float32(f.Scale)*out[i] + float32(f.Zero)
			}
		}
		return v.VisitF32Array(sliceIter(out))
	}
	storage := math.Float32frombits(be.Uint32(raw))
	val := storage
	if !f.HasTrivialScale {
		val = float32(f.Scale)*storage + float32(f.Zero)
	}
	return v.VisitF32(val)
}

func decodeF64Family(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]float64, f.Repeat)
		for i := range out {
			out[i] = math.Float64frombits(be.Uint64(raw[i*8 : i*8+8]))
			if !f.HasTrivialScale {
				out[i] = f.Scale*out[i] + f.Zero
			}
		}
		return v.VisitF64Array(sliceIter(out))
	}
	storage := math.Float64frombits(be.Uint64(raw))
	val := storage
	if !f.HasTrivialScale {
		val = f.Scale*storage + f.Zero
	}
	return v.VisitF64(val)
}

func decodeC64(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]complex64, f.Repeat)
		for i := range out {
			re := math.Float32frombits(be.Uint32(raw[i*8 : i*8+4]))
			im := math.Float32frombits(be.Uint32(raw[i*8+4 : i*8+8]))
			out[i] = complex(re, im)
		}
		return v.VisitC64Array(sliceIter(out))
	}
	re := math.Float32frombits(be.Uint32(raw[0:4]))
	im := math.Float32frombits(be.Uint32(raw[4:8]))
	return v.VisitC64(complex(re, im))
}

func decodeC128(f *FieldSchema, raw []byte, v Visitor) error {
	if f.IsArray {
		out := make([]complex128, f.Repeat)
		for i := range out {
			re := math.Float64frombits(be.Uint64(raw[i*16 : i*16+8]))
			im := math.Float64frombits(be.Uint64(raw[i*16+8 : i*16+16]))
			out[i] = complex(re, im)
		}
		return v.VisitC128Array(sliceIter(out))
	}
	re := math.Float64frombits(be.Uint64(raw[0:8]))
	im := math.Float64frombits(be.Uint64(raw[8:16]))
	return v.VisitC128(complex(re, im))
}

// decodeHeapField reads a P/Q heap descriptor (length, offset) from raw and
// dispatches the matching array-visit method over a lazy iterator reading
// straight out of heap, so the decoded array is never materialized unless
// the visitor itself chooses to.
func decodeHeapField(f *FieldSchema, raw []byte, heap []byte, v Visitor) error {
	var length, offset int64
	if f.HeapLenBits == 32 {
		length = int64(int32(be.Uint32(raw[0:4])))
		offset = int64(int32(be.Uint32(raw[4:8])))
	} else {
		length = int64(be.Uint64(raw[0:8]))
		offset = int64(be.Uint64(raw[8:16]))
	}
	if length < 0 || offset < 0 || offset+length*int64(f.HeapElem.storageWidth()) > int64(len(heap)) {
		return fmt.Errorf("heap descriptor out of range: offset=%d length=%d heap=%d bytes", offset, length, len(heap))
	}
	n := int(length)
	elemWidth := f.HeapElem.storageWidth()
	base := heap[offset : offset+int64(n)*int64(elemWidth)]

	switch f.HeapElem {
	case KindASCII:
		return v.VisitASCII(string(base))
	case KindBool:
		i := 0
		return v.VisitBoolArray(func() (bool, bool) {
			if i >= n {
				return false, false
			}
			val := base[i] == 'T' || base[i] == 1
			i++
			return val, true
		})
	case KindU8:
		i := 0
		return v.VisitU8Array(func() (uint8, bool) {
			if i >= n {
				return 0, false
			}
			val := base[i]
			i++
			return val, true
		})
	case KindI16:
		i := 0
		return v.VisitI16Array(func() (int16, bool) {
			if i >= n {
				return 0, false
			}
			val := int16(be.Uint16(base[i*2 : i*2+2]))
			i++
			return val, true
		})
	case KindI32:
		i := 0
		return v.VisitI32Array(func() (int32, bool) {
			if i >= n {
				return 0, false
			}
			val := int32(be.Uint32(base[i*4 : i*4+4]))
			i++
			return val, true
		})
	case KindI64:
		i := 0
		return v.VisitI64Array(func() (int64, bool) {
			if i >= n {
				return 0, false
			}
			val := int64(be.Uint64(base[i*8 : i*8+8]))
			i++
			return val, true
		})
	case KindF32:
		i := 0
		return v.VisitF32Array(func() (float32, bool) {
			if i >= n {
				return 0, false
			}
			val := math.Float32frombits(be.Uint32(base[i*4 : i*4+4]))
			i++
			return val, true
		})
	case KindF64:
		i := 0
		return v.VisitF64Array(func() (float64, bool) {
			if i >= n {
				return 0, false
			}
			val := math.Float64frombits(be.Uint64(base[i*8 : i*8+8]))
			i++
			return val, true
		})
	case KindC64:
		i := 0
		return v.VisitC64Array(func() (complex64, bool) {
			if i >= n {
				return 0, false
			}
			re := math.Float32frombits(be.Uint32(base[i*8 : i*8+4]))
			im := math.Float32frombits(be.Uint32(base[i*8+4 : i*8+8]))
			i++
			return complex(re, im), true
		})
	case KindC128:
		i := 0
		return v.VisitC128Array(func() (complex128, bool) {
			if i >= n {
				return 0, false
			}
			re := math.Float64frombits(be.Uint64(base[i*16 : i*16+8]))
			im := math.Float64frombits(be.Uint64(base[i*16+8 : i*16+16]))
			i++
			return complex(re, im), true
		})
	default:
		return fmt.Errorf("unsupported heap element kind %d", f.HeapElem)
	}
}

// wrapToUint16 recovers the unsigned value from a signed storage
// representation via wrapping addition in the unsigned target type, per
// the canonical-offset promotion rule for recovering unsigned integers
// stored as their signed counterpart plus a fixed zero-point.
func wrapToUint16(storage int16, zero float64) uint16 {
	return uint16(storage) + uint16(zero)
}

func wrapToUint32(storage int32, zero float64) uint32 {
	return uint32(storage) + uint32(zero)
}

func wrapToUint64(storage int64, zero float64) uint64 {
	return uint64(storage) + uint64(zero)
}

// Package bintable converts a BINTABLE header's per-column TFORM/TSCAL/
// TZERO/TNULL/TDIM keywords into a typed row schema, and drives a
// visitor-based decoder over each row without intermediate allocation. It
// implements components C4 (field schema + row deserializer) and C5 (row
// visitors).
package bintable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cds-astro/fitscat"
)

// Kind identifies the logical decoding variant of a field, after any
// TSCAL/TZERO promotion has been applied. It is the tag of the schema's
// tagged-union encoding: tagged variants, not per-field virtual dispatch.
type Kind uint8

const (
	KindBool Kind = iota
	KindBit
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
	KindC64
	KindC128
	KindASCII
)

// storageWidth returns the number of bytes one element of this storage kind
// occupies, before any array repeat multiplies it.
func (k Kind) storageWidth() int {
	switch k {
	case KindBool, KindU8, KindASCII:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64, KindC64:
		return 8
	case KindC128:
		return 16
	default:
		return 0
	}
}

// FieldSchema describes how to decode one column of a row: its byte
// position, its storage shape (scalar, fixed array, or heap-resident
// variable array), and the promotion (scale/offset/null) rules that turn
// the raw storage bytes into the value passed to a Visitor.
type FieldSchema struct {
	Index       int // 1-based column number
	Name        string
	StartByte   int // offset of this field within one row
	StoredWidth int // total bytes this field occupies in the row
	Repeat      int // element count for fixed arrays; 1 for scalars

	Storage   Kind // the kind as stored on disk
	Promoted  Kind // the kind emitted to the visitor, after scale/offset
	IsArray   bool // Repeat > 1, or a heap-resident array; always false for ASCII strings
	ASCIILen  int  // for KindASCII: the character count

	Nullable     bool // TNULL present (integers only)
	NullSentinel int64

	Scale float64 // TSCAL, default 1.0
	Zero  float64 // TZERO, default 0.0
	// HasTrivialScale is true when Scale==1 and Zero==0: no promotion.
	HasTrivialScale bool
	// IsUnsignedOffset is true when the canonical unsigned-recovery offset
	// applies (TZERO equal to 2^(width-1), TSCAL==1): Promoted becomes the
	// unsigned integer of the same width, recovered via wrapping addition.
	IsUnsignedOffset bool

	Dim []int // parsed TDIM shape, if present

	IsHeap      bool // TFORM letter P or Q
	HeapLenBits int  // 32 for P, 64 for Q
	HeapElem    Kind // element kind of the heap-resident array
}

// RowSchema is the ordered list of field schemas making up one BINTABLE row.
type RowSchema struct {
	Fields   []FieldSchema
	RowWidth int
}

// canonical unsigned-recovery offsets, keyed by storage width in bytes.
var canonicalOffset = map[int]float64{
	1: 128,                          // TFORM 'B': -128
	2: 32768,                        // TFORM 'I': 32768
	4: 2147483648,                   // TFORM 'J': 2147483648
	8: 9223372036854775808.0,        // TFORM 'K': 2^63
}

// BuildRowSchema converts a parsed BINTABLE header's columns into a
// RowSchema. It is total: any combination of TFORM/TSCAL/TZERO/TNULL/TDIM
// produces exactly one schema variant. TSCAL/TZERO accompanying a TFORM
// with no numeric semantics (L, X, A) are recorded as an ignored-modifier
// warning rather than an error.
func BuildRowSchema(h *fits.Header) (*RowSchema, []string, error) {
	if h.Class != fits.ClassBinTable {
		return nil, nil, fmt.Errorf("bintable: header is not a BINTABLE")
	}
	var warnings []string
	schema := &RowSchema{Fields: make([]FieldSchema, 0, len(h.Columns))}
	offset := 0
	for _, col := range h.Columns {
		fs, warn, err := buildField(col, offset)
		if err != nil {
			return nil, warnings, fmt.Errorf("column %d (%s): %w", col.Index, col.Name, err)
		}
		warnings = append(warnings, warn...)
		offset += fs.StoredWidth
		schema.Fields = append(schema.Fields, *fs)
	}
	schema.RowWidth = offset
	if int64(schema.RowWidth) != h.RowByteSize {
		return nil, warnings, fmt.Errorf("bintable: row schema width %d does not match NAXIS1 %d", schema.RowWidth, h.RowByteSize)
	}
	return schema, warnings, nil
}

// tformSpec is the parsed shape of one TFORM value: an optional repeat
// count, a type letter, and for P/Q, the heap element letter and max length.
type tformSpec struct {
	repeat     int
	letter     byte
	heapElem   byte
	heapMaxLen int
}

func parseTForm(form string) (*tformSpec, error) {
	form = strings.TrimSpace(form)
	if form == "" {
		return nil, fmt.Errorf("empty TFORM")
	}
	i := 0
	for i < len(form) && form[i] >= '0' && form[i] <= '9' {
		i++
	}
	repeat := 1
	if i > 0 {
		n, err := strconv.Atoi(form[:i])
		if err != nil {
			return nil, fmt.Errorf("invalid TFORM repeat count %q: %w", form[:i], err)
		}
		repeat = n
	}
	if i >= len(form) {
		return nil, fmt.Errorf("TFORM %q missing type letter", form)
	}
	letter := form[i]
	if !strings.ContainsRune("LXBIJKAEDCMPQ", rune(letter)) {
		return nil, fmt.Errorf("TFORM %q has unsupported type letter %q", form, letter)
	}
	if letter == 'P' || letter == 'Q' {
		rest := form[i+1:]
		if len(rest) < 1 {
			return nil, fmt.Errorf("TFORM %q missing heap element type", form)
		}
		heapElem := rest[0]
		open := strings.IndexByte(rest, '(')
		close := strings.IndexByte(rest, ')')
		maxLen := 0
		if open != -1 && close != -1 && close > open {
			n, err := strconv.Atoi(rest[open+1 : close])
			if err == nil {
				maxLen = n
			}
		}
		return &tformSpec{repeat: repeat, letter: letter, heapElem: heapElem, heapMaxLen: maxLen}, nil
	}
	return &tformSpec{repeat: repeat, letter: letter}, nil
}

func letterToKind(letter byte) (Kind, error) {
	switch letter {
	case 'L':
		return KindBool, nil
	case 'X':
		return KindBit, nil
	case 'B':
		return KindU8, nil
	case 'I':
		return KindI16, nil
	case 'J':
		return KindI32, nil
	case 'K':
		return KindI64, nil
	case 'A':
		return KindASCII, nil
	case 'E':
		return KindF32, nil
	case 'D':
		return KindF64, nil
	case 'C':
		return KindC64, nil
	case 'M':
		return KindC128, nil
	default:
		return 0, fmt.Errorf("no storage kind for TFORM letter %q", letter)
	}
}

func buildField(col fits.Column, startByte int) (*FieldSchema, []string, error) {
	spec, err := parseTForm(col.Form)
	if err != nil {
		return nil, nil, err
	}
	fs := &FieldSchema{
		Index:     col.Index,
		Name:      col.Name,
		StartByte: startByte,
		Repeat:    spec.repeat,
		Scale:     1.0,
		Zero:      0.0,
	}
	if col.Scale != nil {
		fs.Scale = *col.Scale
	}
	if col.Zero != nil {
		fs.Zero = *col.Zero
	}
	fs.HasTrivialScale = fs.Scale == 1.0 && fs.Zero == 0.0

	var warnings []string

	if spec.letter == 'P' || spec.letter == 'Q' {
		elemKind, err := letterToKind(spec.heapElem)
		if err != nil {
			return nil, nil, err
		}
		fs.IsHeap = true
		fs.IsArray = true
		fs.HeapElem = elemKind
		if spec.letter == 'P' {
			fs.HeapLenBits = 32
			fs.StoredWidth = 8
		} else {
			fs.HeapLenBits = 64
			fs.StoredWidth = 16
		}
		fs.Storage = elemKind
		fs.Promoted = elemKind
		return fs, warnings, nil
	}

	kind, err := letterToKind(spec.letter)
	if err != nil {
		return nil, nil, err
	}
	fs.Storage = kind
	fs.Promoted = kind

	switch kind {
	case KindASCII:
		fs.StoredWidth = spec.repeat
		fs.ASCIILen = spec.repeat
		fs.IsArray = false
		if col.Scale != nil || col.Zero != nil {
			warnings = append(warnings, fmt.Sprintf("column %d: TSCAL/TZERO ignored for TFORM letter A", col.Index))
		}
	case KindBool, KindBit:
		fs.StoredWidth = bitWidth(kind, spec.repeat)
		fs.Repeat = spec.repeat
		fs.IsArray = spec.repeat > 1
		if col.Scale != nil || col.Zero != nil {
			warnings = append(warnings, fmt.Sprintf("column %d: TSCAL/TZERO ignored for TFORM letter %c", col.Index, spec.letter))
		}
	default:
		width := kind.storageWidth()
		fs.StoredWidth = width * spec.repeat
		fs.IsArray = spec.repeat > 1
		if err := applyNumericPromotion(fs, col, width); err != nil {
			return nil, nil, err
		}
	}
	fs.Dim = col.Dim
	return fs, warnings, nil
}

func bitWidth(kind Kind, repeat int) int {
	if kind == KindBool {
		return repeat
	}
	// KindBit: bit array packed at ceil(n/8) bytes.
	return (repeat + 7) / 8
}

// applyNumericPromotion implements the TSCAL/TZERO promotion rules of
// canonical unsigned recovery when possible, otherwise a
// linear float promotion, otherwise no promotion at all.
func applyNumericPromotion(fs *FieldSchema, col fits.Column, width int) error {
	if col.Null != nil {
		switch fs.Storage {
		case KindU8, KindI16, KindI32, KindI64:
			fs.Nullable = true
			fs.NullSentinel = *col.Null
		default:
			// TNULL only applies to integer storage; ignore elsewhere.
		}
	}

	isIntegerStorage := fs.Storage == KindU8 || fs.Storage == KindI16 || fs.Storage == KindI32 || fs.Storage == KindI64
	if fs.HasTrivialScale {
		return nil
	}
	if !isIntegerStorage {
		// E/D: the promoted kind stays the stored float kind; the decoder
		// applies scale/zero itself when HasTrivialScale is false.
		if fs.Storage == KindF32 || fs.Storage == KindF64 {
			fs.Promoted = fs.Storage
			return nil
		}
		return nil
	}

	canonical, ok := canonicalOffset[width]
	if ok && fs.Scale == 1.0 && fs.Zero == canonical {
		fs.IsUnsignedOffset = true
		switch width {
		case 1:
			fs.Promoted = KindU8
		case 2:
			fs.Promoted = KindU16
		case 4:
			fs.Promoted = KindU32
		case 8:
			fs.Promoted = KindU64
		}
		return nil
	}

	// Otherwise: floating-point promotion. f32 for storage widths <= 16
	// bits (B, I); f64 for >= 32 bits (J, K).
	if width <= 2 {
		fs.Promoted = KindF32
	} else {
		fs.Promoted = KindF64
	}
	return nil
}

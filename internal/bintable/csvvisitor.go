package bintable

import (
	"bytes"
	"strconv"
)

// CSVVisitor renders one row at a time into a growable buffer, comma
// separating fields and newline separating rows. It writes a leading
// newline before every row except the first, so the caller gets exactly
// one trailing newline once the last row has been appended and the buffer
// flushed — never a stray separator at the very end of the stream.
type CSVVisitor struct {
	BaseVisitor
	Buf bytes.Buffer

	sep byte // 0 before the first field of a row, ',' after
}

func NewCSVVisitor() *CSVVisitor {
	return &CSVVisitor{}
}

func (c *CSVVisitor) StartRow() {
	if c.Buf.Len() > 0 {
		c.Buf.WriteByte('\n')
	}
	c.sep = 0
}

func (c *CSVVisitor) writeSep() {
	if c.sep != 0 {
		c.Buf.WriteByte(c.sep)
	}
	c.sep = ','
}

func (c *CSVVisitor) VisitBool(v bool) error {
	c.writeSep()
	if v {
		c.Buf.WriteByte('1')
	} else {
		c.Buf.WriteByte('0')
	}
	return nil
}

func (c *CSVVisitor) VisitOptBool(v bool, isNull bool) error {
	c.writeSep()
	if isNull {
		return nil
	}
	if v {
		c.Buf.WriteByte('1')
	} else {
		c.Buf.WriteByte('0')
	}
	return nil
}

func (c *CSVVisitor) VisitU8(v uint8) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	return nil
}

func (c *CSVVisitor) VisitOptU8(v uint8, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	return nil
}

func (c *CSVVisitor) VisitI16(v int16) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatInt(int64(v), 10))
	return nil
}

func (c *CSVVisitor) VisitOptI16(v int16, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatInt(int64(v), 10))
	}
	return nil
}

func (c *CSVVisitor) VisitU16(v uint16) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	return nil
}

func (c *CSVVisitor) VisitOptU16(v uint16, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	return nil
}

func (c *CSVVisitor) VisitI32(v int32) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatInt(int64(v), 10))
	return nil
}

func (c *CSVVisitor) VisitOptI32(v int32, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatInt(int64(v), 10))
	}
	return nil
}

func (c *CSVVisitor) VisitU32(v uint32) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	return nil
}

func (c *CSVVisitor) VisitOptU32(v uint32, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	return nil
}

func (c *CSVVisitor) VisitI64(v int64) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatInt(v, 10))
	return nil
}

func (c *CSVVisitor) VisitOptI64(v int64, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatInt(v, 10))
	}
	return nil
}

func (c *CSVVisitor) VisitU64(v uint64) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatUint(v, 10))
	return nil
}

func (c *CSVVisitor) VisitOptU64(v uint64, isNull bool) error {
	c.writeSep()
	if !isNull {
		c.Buf.WriteString(strconv.FormatUint(v, 10))
	}
	return nil
}

func (c *CSVVisitor) VisitF32(v float32) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	return nil
}

func (c *CSVVisitor) VisitF64(v float64) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	return nil
}

func (c *CSVVisitor) VisitC64(v complex64) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatFloat(float64(real(v)), 'g', -1, 32))
	c.Buf.WriteByte(' ')
	c.Buf.WriteString(strconv.FormatFloat(float64(imag(v)), 'g', -1, 32))
	return nil
}

func (c *CSVVisitor) VisitC128(v complex128) error {
	c.writeSep()
	c.Buf.WriteString(strconv.FormatFloat(real(v), 'g', -1, 64))
	c.Buf.WriteByte(' ')
	c.Buf.WriteString(strconv.FormatFloat(imag(v), 'g', -1, 64))
	return nil
}

func (c *CSVVisitor) VisitASCII(v string) error {
	c.writeSep()
	needsQuote := bytes.ContainsAny([]byte(v), ",\"\n")
	if !needsQuote {
		c.Buf.WriteString(v)
		return nil
	}
	c.Buf.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' {
			c.Buf.WriteByte('"')
		}
		c.Buf.WriteByte(v[i])
	}
	c.Buf.WriteByte('"')
	return nil
}

func (c *CSVVisitor) VisitBitArray(it Iter[bool]) error {
	return c.visitBoolLikeArray(it)
}

func (c *CSVVisitor) VisitBoolArray(it Iter[bool]) error {
	return c.visitBoolLikeArray(it)
}

func (c *CSVVisitor) visitBoolLikeArray(it Iter[bool]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		if v {
			c.Buf.WriteByte('1')
		} else {
			c.Buf.WriteByte('0')
		}
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitU8Array(it Iter[uint8]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitI16Array(it Iter[int16]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatInt(int64(v), 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitU16Array(it Iter[uint16]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitI32Array(it Iter[int32]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatInt(int64(v), 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitU32Array(it Iter[uint32]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitI64Array(it Iter[int64]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatInt(v, 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitU64Array(it Iter[uint64]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatUint(v, 10))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitF32Array(it Iter[float32]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitF64Array(it Iter[float64]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitC64Array(it Iter[complex64]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatFloat(float64(real(v)), 'g', -1, 32))
		c.Buf.WriteByte(' ')
		c.Buf.WriteString(strconv.FormatFloat(float64(imag(v)), 'g', -1, 32))
	}
	c.Buf.WriteByte(']')
	return nil
}

func (c *CSVVisitor) VisitC128Array(it Iter[complex128]) error {
	c.writeSep()
	c.Buf.WriteByte('[')
	first := true
	for {
		v, ok := it()
		if !ok {
			break
		}
		if !first {
			c.Buf.WriteByte(' ')
		}
		first = false
		c.Buf.WriteString(strconv.FormatFloat(real(v), 'g', -1, 64))
		c.Buf.WriteByte(' ')
		c.Buf.WriteString(strconv.FormatFloat(imag(v), 'g', -1, 64))
	}
	c.Buf.WriteByte(']')
	return nil
}

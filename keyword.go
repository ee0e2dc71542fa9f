// Copyright 2014 Shahriar Iravanian (siravan@svtsim.com).  All rights reserved.
// Use of this source code is governed by a MIT license that can be found in the LICENSE file.

package fits

import (
	"strconv"
	"strings"
)

// RecordSize is the fixed width, in bytes, of one FITS keyword record.
const RecordSize = 80

// Record is one 80-byte keyword record: bytes 0-7 the keyword name,
// bytes 8-9 the value indicator ("= " or two spaces), bytes 10-79 the
// value-plus-optional-comment region.
type Record [RecordSize]byte

// Name returns the left-justified, space-trimmed keyword name in bytes 0-7.
func (r *Record) Name() string {
	return strings.TrimRight(string(r[0:8]), " ")
}

// HasValueIndicator reports whether bytes 8-9 are "= " (a valued keyword) as
// opposed to two spaces (commentary/blank keyword, e.g. COMMENT, HISTORY, or
// a blank line).
func (r *Record) HasValueIndicator() bool {
	return r[8] == '=' && r[9] == ' '
}

// ValueComment returns the 70-byte value-plus-comment region (bytes 10-79).
func (r *Record) ValueComment() []byte {
	return r[10:80]
}

// IsEnd reports whether this record is the header terminator: keyword "END"
// followed by spaces through the rest of the record.
func (r *Record) IsEnd() bool {
	return r.Name() == "END" && strings.TrimRight(string(r[8:80]), " ") == ""
}

// IsContinue reports whether this record's keyword is CONTINUE, used to
// concatenate a long string value split across records.
func (r *Record) IsContinue() bool {
	return r.Name() == "CONTINUE"
}

// fillSpaces resets a record to all-space bytes, the state a writer expects
// every record to be pre-filled with before it writes a keyword into it.
func fillSpaces(r *Record) {
	for i := range r {
		r[i] = ' '
	}
}

// splitCommentOutsideString separates the 70-byte value region into the
// raw value text and an optional comment, splitting at the first '/'
// outside of any string literal. comment is "" when no separator was
// found in the non-string portion.
func splitCommentOutsideString(vc string) (value, comment string) {
	inString := false
	for i := 0; i < len(vc); i++ {
		c := vc[i]
		if c == '\'' {
			inString = !inString
			continue
		}
		if !inString && c == '/' {
			return vc[:i], strings.TrimSpace(vc[i+1:])
		}
	}
	return vc, ""
}

// --- Free-format parsing ---------------------------------------------------

// ParseFreeLogical parses a free-format logical value: "T" or "F" as the
// first non-space character.
func ParseFreeLogical(vc []byte) (value bool, comment string, err error) {
	s := strings.TrimLeft(string(vc), " ")
	if s == "" {
		return false, "", newParseError("logical", errEmptyValue)
	}
	switch s[0] {
	case 'T':
		return true, trimComment(s[1:]), nil
	case 'F':
		return false, trimComment(s[1:]), nil
	default:
		return false, "", newParseError("logical", errUnparseableLogical)
	}
}

// ParseFreeInt parses a free-format integer value in bytes 11 onward.
func ParseFreeInt(vc []byte) (value int64, comment string, err error) {
	s := strings.TrimLeft(string(vc), " ")
	if s == "" {
		return 0, "", newParseError("integer", errEmptyValue)
	}
	val, rest := splitCommentOutsideString(s)
	val = strings.TrimSpace(val)
	n, perr := strconv.ParseInt(val, 10, 64)
	if perr != nil {
		return 0, "", newParseError("integer", errUnparseableInt)
	}
	return n, strings.TrimSpace(rest), nil
}

// ParseFreeReal parses a free-format real value, accepting the FITS
// exponent letters D/E/d/e, all normalized to Go's 'e'.
func ParseFreeReal(vc []byte) (value float64, comment string, err error) {
	s := strings.TrimLeft(string(vc), " ")
	if s == "" {
		return 0, "", newParseError("real", errEmptyValue)
	}
	val, rest := splitCommentOutsideString(s)
	val = strings.TrimSpace(val)
	norm := strings.NewReplacer("D", "E", "d", "e").Replace(val)
	f, perr := strconv.ParseFloat(norm, 64)
	if perr != nil {
		return 0, "", newParseError("real", errUnparseableReal)
	}
	return f, strings.TrimSpace(rest), nil
}

// ParseFreeString parses a free-format string literal starting at the first
// '\'' in vc. Two adjacent single quotes inside the literal escape one
// quote. It returns the trailing raw bytes still unconsumed within this
// record's value-comment region, so the caller can detect a CONTINUE
// opportunity (a value ending in '&').
func ParseFreeString(vc []byte) (value string, rest []byte, err error) {
	s := string(vc)
	i := strings.IndexByte(s, ' ')
	_ = i
	// find opening quote (first non-space char must be it)
	j := 0
	for j < len(s) && s[j] == ' ' {
		j++
	}
	if j >= len(s) || s[j] != '\'' {
		return "", nil, newParseError("string", errNotAString)
	}
	j++
	var sb strings.Builder
	for j < len(s) {
		if s[j] == '\'' {
			if j+1 < len(s) && s[j+1] == '\'' {
				sb.WriteByte('\'')
				j += 2
				continue
			}
			return strings.TrimRight(sb.String(), " "), []byte(s[j+1:]), nil
		}
		sb.WriteByte(s[j])
		j++
	}
	return "", nil, newParseError("string", errUnterminatedString)
}

// trimComment strips a leading " / "-style comment separator from the tail
// of a value field and returns the trimmed comment text, if any.
func trimComment(tail string) string {
	tail = strings.TrimSpace(tail)
	tail = strings.TrimPrefix(tail, "/")
	return strings.TrimSpace(tail)
}

// --- Fixed-format parsing ---------------------------------------------------

// ParseFixedString parses a fixed-format string value: the literal starts
// exactly at byte 11 (vc[0]).
func ParseFixedString(vc []byte) (value string, comment string, err error) {
	if len(vc) == 0 || vc[0] != '\'' {
		return "", "", newParseError("string", errNotAString)
	}
	v, rest, err := ParseFreeString(vc)
	if err != nil {
		return "", "", err
	}
	return v, trimComment(string(rest)), nil
}

// ParseFixedInt parses a fixed-format integer: right-justified in bytes
// 11-30 (vc[0:20]).
func ParseFixedInt(vc []byte) (value int64, comment string, err error) {
	if len(vc) < 20 {
		return 0, "", newParseError("integer", errEmptyValue)
	}
	field := strings.TrimSpace(string(vc[0:20]))
	if field == "" {
		return 0, "", newParseError("integer", errEmptyValue)
	}
	n, perr := strconv.ParseInt(field, 10, 64)
	if perr != nil {
		return 0, "", newParseError("integer", errUnparseableInt)
	}
	return n, trimComment(string(vc[20:])), nil
}

// ParseFixedLogical parses a fixed-format logical: 'T'/'F' right-justified
// at byte 30 (vc[19]).
func ParseFixedLogical(vc []byte) (value bool, comment string, err error) {
	if len(vc) < 20 {
		return false, "", newParseError("logical", errEmptyValue)
	}
	field := strings.TrimSpace(string(vc[0:20]))
	switch field {
	case "T":
		return true, trimComment(string(vc[20:])), nil
	case "F":
		return false, trimComment(string(vc[20:])), nil
	default:
		return false, "", newParseError("logical", errUnparseableLogical)
	}
}

// --- HIERARCH -----------------------------------------------------------

// ParseHierarch splits a HIERARCH long-keyword record into its dotted
// long name and the remaining value region (still in free format). The
// grammar is "HIERARCH name1 name2 ... = value / comment".
func ParseHierarch(vc []byte) (longName string, valueRegion []byte, err error) {
	s := string(vc)
	i := strings.Index(s, "=")
	if i == -1 {
		return "", nil, newParseError("HIERARCH", errHierarchNoSeparator)
	}
	longName = strings.TrimSpace(s[:i])
	return longName, []byte(s[i+1:]), nil
}

// --- CONTINUE -------------------------------------------------------------

// ReadContinuedString concatenates a STRING value that spans CONTINUE
// records. firstValue is the value the caller already parsed from the
// record before records[start] (its trailing '&', if any, signals
// continuation); records[start] is the first candidate CONTINUE record. It
// returns the fully concatenated string and the index just past the last
// record consumed.
func ReadContinuedString(firstValue string, records []*Record, start int) (value string, next int, err error) {
	value = firstValue
	next = start
	for strings.HasSuffix(value, "&") && next < len(records) && records[next].IsContinue() {
		cont, _, cerr := ParseFixedString(records[next].ValueComment())
		if cerr != nil {
			return "", next, cerr
		}
		value = strings.TrimSuffix(value, "&") + cont
		next++
	}
	return value, next, nil
}

// --- Emission ---------------------------------------------------------

// WriteFixedString writes a fixed-format string-valued keyword record,
// escaping embedded single quotes by doubling them, and appending an
// optional comment via the " / " separator, left-truncating the comment if
// it would overflow the 70-byte value-comment field.
func WriteFixedString(rec *Record, keyword, value, comment string) error {
	fillSpaces(rec)
	if err := writeName(rec, keyword); err != nil {
		return err
	}
	rec[8], rec[9] = '=', ' '
	escaped := strings.ReplaceAll(value, "'", "''")
	lit := "'" + escaped + "'"
	if len(lit) < 8 {
		lit += strings.Repeat(" ", 8-len(lit)) // minimum quoted-string field width per the standard
	}
	writeValueAndComment(rec, lit, comment, false)
	return nil
}

// WriteFixedInt right-justifies an integer into the 20-byte fixed value
// field and appends an optional comment.
func WriteFixedInt(rec *Record, keyword string, value int64, comment string) error {
	fillSpaces(rec)
	if err := writeName(rec, keyword); err != nil {
		return err
	}
	rec[8], rec[9] = '=', ' '
	s := strconv.FormatInt(value, 10)
	writeValueAndComment(rec, s, comment, true)
	return nil
}

// WriteFixedLogical writes 'T' or 'F' at byte 30 and an optional comment.
func WriteFixedLogical(rec *Record, keyword string, value bool, comment string) error {
	fillSpaces(rec)
	if err := writeName(rec, keyword); err != nil {
		return err
	}
	rec[8], rec[9] = '=', ' '
	s := "F"
	if value {
		s = "T"
	}
	writeValueAndComment(rec, s, comment, true)
	return nil
}

// WriteFixedReal writes a real value in E notation (strconv's 'E' format,
// which always carries the exponent sign) at the requested
// significant-digit count, retrying with one fewer digit if the rendered
// value would overflow the 20-byte fixed field.
func WriteFixedReal(rec *Record, keyword string, value float64, sigDigits int, comment string) error {
	fillSpaces(rec)
	if err := writeName(rec, keyword); err != nil {
		return err
	}
	rec[8], rec[9] = '=', ' '
	for d := sigDigits; d >= 1; d-- {
		s := strconv.FormatFloat(value, 'E', d-1, 64)
		if len(s) <= 20 {
			writeValueAndComment(rec, s, comment, true)
			return nil
		}
	}
	return newParseError("real", errFieldOverflow)
}

// WriteCommentary writes a commentary keyword (COMMENT, HISTORY, or a blank
// keyword) whose whole 72-byte remainder is free text with no value
// indicator.
func WriteCommentary(rec *Record, keyword, text string) error {
	fillSpaces(rec)
	if err := writeName(rec, keyword); err != nil {
		return err
	}
	b := []byte(text)
	if len(b) > 72 {
		b = b[:72]
	}
	copy(rec[8:80], b)
	return nil
}

func writeName(rec *Record, keyword string) error {
	if len(keyword) > 8 {
		return newParseError("keyword", errKeywordTooLong)
	}
	copy(rec[0:8], keyword)
	return nil
}

// writeValueAndComment places value right-justified in bytes 11-30 when
// fixed is true (otherwise left-justified starting at byte 11), then
// appends " / comment", left-truncating the comment to fit within the
// 70-byte value-comment region.
func writeValueAndComment(rec *Record, value, comment string, fixed bool) {
	vc := rec[10:80]
	for i := range vc {
		vc[i] = ' '
	}
	if fixed {
		if len(value) > 20 {
			value = value[:20]
		}
		copy(vc[20-len(value):20], value)
	} else {
		copy(vc[0:], value)
	}
	if comment == "" {
		return
	}
	start := 20
	if !fixed {
		start = len(value)
	}
	sep := " / "
	remaining := 70 - start - len(sep)
	if remaining <= 0 {
		return
	}
	if len(comment) > remaining {
		comment = comment[:remaining]
	}
	copy(vc[start:], sep+comment)
}

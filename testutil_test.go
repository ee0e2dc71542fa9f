package fits

import "strings"

// buildHeaderBlock renders a sequence of "KEYWORD=VALUE" or raw record
// strings into one or more padded 2880-byte header blocks terminated by
// END, for use by tests across this package.
func buildHeaderBlock(lines []string) []byte {
	var recs []byte
	for _, l := range lines {
		var rec Record
		fillSpaces(&rec)
		eq := strings.Index(l, "=")
		if eq == -1 {
			copy(rec[0:], l)
		} else {
			name := strings.TrimSpace(l[:eq])
			val := strings.TrimSpace(l[eq+1:])
			copy(rec[0:8], name)
			rec[8], rec[9] = '=', ' '
			copy(rec[10:], val)
		}
		recs = append(recs, rec[:]...)
	}
	var end Record
	fillSpaces(&end)
	copy(end[0:3], "END")
	recs = append(recs, end[:]...)

	pad := BlockSize - (len(recs) % BlockSize)
	if pad == BlockSize {
		pad = 0
	}
	padding := make([]byte, pad)
	for i := range padding {
		padding[i] = ' '
	}
	return append(recs, padding...)
}

func zeroPad(n int) []byte {
	pad := n % BlockSize
	if pad == 0 {
		return nil
	}
	return make([]byte, BlockSize-pad)
}

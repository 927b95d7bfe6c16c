package textfile

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// decodeUTF7 decodes RFC 2152 text. Shifted sequences start with '+' and
// carry modified base64 of UTF-16 code units; an optional '-' ends them and
// is absorbed. "+-" is a literal '+'. Leftover bits at the end of a shifted
// sequence are dropped.
func decodeUTF7(b []byte) string {
	var (
		sb      strings.Builder
		shifted bool
		bits    uint32
		nbits   uint
		units   []uint16
	)
	flush := func() {
		for _, r := range utf16.Decode(units) {
			sb.WriteRune(r)
		}
		units = units[:0]
		bits, nbits = 0, 0
	}
	direct := func(c byte) {
		if c >= utf8.RuneSelf {
			sb.WriteRune(utf8.RuneError)
			return
		}
		sb.WriteByte(c)
	}

	for i := 0; i < len(b); i++ {
		c := b[i]
		if !shifted {
			if c != '+' {
				direct(c)
				continue
			}
			if i+1 < len(b) && b[i+1] == '-' {
				sb.WriteByte('+')
				i++
				continue
			}
			shifted = true
			continue
		}

		v := base64Value(c)
		if v < 0 {
			shifted = false
			flush()
			if c != '-' {
				direct(c)
			}
			continue
		}
		bits = bits<<6 | uint32(v)
		nbits += 6
		if nbits >= 16 {
			nbits -= 16
			units = append(units, uint16(bits>>nbits))
			bits &= 1<<nbits - 1
		}
	}
	if shifted {
		flush()
	}
	return sb.String()
}

func base64Value(c byte) int {
	switch {
	case c >= 'A' && c <= 'Z':
		return int(c - 'A')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 26
	case c >= '0' && c <= '9':
		return int(c-'0') + 52
	case c == '+':
		return 62
	case c == '/':
		return 63
	default:
		return -1
	}
}

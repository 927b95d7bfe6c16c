package textfile

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Encoding is a text encoding recognised from a byte-order mark.
type Encoding int

const (
	ASCII Encoding = iota
	UTF7
	UTF8
	UTF16LE
	UTF16BE
	UTF32LE
	UTF32BE
)

func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ascii"
	case UTF7:
		return "utf-7"
	case UTF8:
		return "utf-8"
	case UTF16LE:
		return "utf-16le"
	case UTF16BE:
		return "utf-16be"
	case UTF32LE:
		return "utf-32le"
	case UTF32BE:
		return "utf-32be"
	default:
		return "unknown"
	}
}

// BOMSize is the longest prefix DetectEncoding looks at.
const BOMSize = 4

var boms = []struct {
	prefix   []byte
	encoding Encoding
}{
	{[]byte{0x2b, 0x2f, 0x76}, UTF7},
	{[]byte{0xef, 0xbb, 0xbf}, UTF8},
	// must precede UTF-16LE, whose mark is a prefix of this one
	{[]byte{0xff, 0xfe, 0x00, 0x00}, UTF32LE},
	{[]byte{0xff, 0xfe}, UTF16LE},
	{[]byte{0xfe, 0xff}, UTF16BE},
	{[]byte{0x00, 0x00, 0xfe, 0xff}, UTF32BE},
}

// DetectEncoding inspects up to the first BOMSize bytes of b. Content
// without a known byte-order mark is ASCII.
func DetectEncoding(b []byte) Encoding {
	if len(b) > BOMSize {
		b = b[:BOMSize]
	}
	for _, bom := range boms {
		if bytes.HasPrefix(b, bom.prefix) {
			return bom.encoding
		}
	}
	return ASCII
}

// Decode converts raw into text. The byte-order mark is not part of the
// result. Malformed input decodes to replacement characters rather than
// failing.
func Decode(enc Encoding, raw []byte) (string, error) {
	var dec encoding.Encoding
	switch enc {
	case ASCII:
		return decodeASCII(raw), nil
	case UTF7:
		return strings.TrimPrefix(decodeUTF7(raw), "\ufeff"), nil
	case UTF8:
		dec = unicode.UTF8BOM
	case UTF16LE:
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case UTF16BE:
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case UTF32LE:
		dec = utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM)
	case UTF32BE:
		dec = utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM)
	default:
		return "", fmt.Errorf("unsupported encoding %d", enc)
	}
	out, err := dec.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", enc, err)
	}
	return string(out), nil
}

// decodeASCII maps every byte outside the 7-bit range to '?'.
func decodeASCII(raw []byte) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, c := range raw {
		if c >= 0x80 {
			c = '?'
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

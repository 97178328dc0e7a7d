// Package charset converts SACD text fields to UTF-8.
//
// Master and area TOCs tag every text channel with a character set code.
// Codes 1 and 2 are ISO 646 and ISO 8859-1, the remaining codes name the
// East Asian double byte encodings.
package charset

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Code is a SACD character set code. Only the low three bits are significant.
type Code uint8

const (
	Unknown      Code = 0
	ISO646       Code = 1
	ISO8859_1    Code = 2
	RISJIS       Code = 3 // Music Shift-JIS
	KSC5601      Code = 4
	GB2312       Code = 5
	Big5         Code = 6
	ISO8859_1Alt Code = 7
)

// Mask isolates the significant bits of a raw locale character set byte.
const Mask = 0x07

func (c Code) encoding() encoding.Encoding {
	switch c & Mask {
	case ISO8859_1, ISO8859_1Alt:
		return charmap.ISO8859_1
	case RISJIS:
		return japanese.ShiftJIS
	case KSC5601:
		return korean.EUCKR
	case GB2312:
		return simplifiedchinese.GBK
	case Big5:
		return traditionalchinese.Big5
	default:
		return nil
	}
}

// String returns the name of the character set.
func (c Code) String() string {
	switch c & Mask {
	case ISO646:
		return "ISO 646"
	case ISO8859_1, ISO8859_1Alt:
		return "ISO 8859-1"
	case RISJIS:
		return "Shift-JIS"
	case KSC5601:
		return "KS C 5601"
	case GB2312:
		return "GB 2312"
	case Big5:
		return "Big5"
	default:
		return "unknown"
	}
}

// Decode converts a text field to UTF-8. The field ends at the first NUL.
// Plain ASCII and undecodable input are returned with invalid bytes replaced.
func Decode(c Code, raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) == 0 {
		return ""
	}
	if enc := c.encoding(); enc != nil {
		if out, err := enc.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	return string(bytes.ToValidUTF8(raw, []byte("�")))
}

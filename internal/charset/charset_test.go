package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		code Code
		raw  []byte
		want string
	}{
		{"ascii", ISO646, []byte("Kind of Blue"), "Kind of Blue"},
		{"nul terminated", ISO646, []byte("Miles\x00garbage"), "Miles"},
		{"latin1", ISO8859_1, []byte{'C', 'a', 'f', 0xE9}, "Café"},
		{"shift-jis", RISJIS, []byte{0x93, 0xFA, 0x96, 0x7B}, "日本"},
		{"euc-kr", KSC5601, []byte{0xC7, 0xD1, 0xB1, 0xB9}, "한국"},
		{"gb2312", GB2312, []byte{0xD6, 0xD0, 0xCE, 0xC4}, "中文"},
		{"big5", Big5, []byte{0xA4, 0xA4, 0xA4, 0xE5}, "中文"},
		{"upper bits ignored", RISJIS | 0xF8, []byte{0x93, 0xFA}, "日"},
		{"empty", ISO8859_1, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.code, tt.raw))
		})
	}
}

func TestUnknownInvalidBytesAreReplaced(t *testing.T) {
	got := Decode(Unknown, []byte{'a', 0xFF, 'b'})
	assert.Equal(t, "a�b", got)
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "Shift-JIS", RISJIS.String())
	assert.Equal(t, "ISO 8859-1", ISO8859_1Alt.String())
	assert.Equal(t, "unknown", Unknown.String())
}

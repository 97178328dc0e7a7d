// Package id3tags converts between the ID3v2 blobs embedded in DSF and
// DSDIFF files and container.Tags. Blobs are read with dhowden/tag and
// written with bogem/id3v2.
package id3tags

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"

	"github.com/tphakala/go-sacd/internal/container"
)

const (
	id3Version  = 4
	commentLang = "eng"
)

// Parse reads an ID3v2 blob.
func Parse(blob []byte) (container.Tags, error) {
	if len(blob) == 0 {
		return container.Tags{}, nil
	}
	m, err := tag.ReadFrom(bytes.NewReader(blob))
	if err != nil {
		return container.Tags{}, fmt.Errorf("%w: id3: %w", container.ErrFormat, err)
	}
	t := container.Tags{
		Title:       m.Title(),
		Artist:      m.Artist(),
		AlbumArtist: m.AlbumArtist(),
		Album:       m.Album(),
		Composer:    m.Composer(),
		Genre:       m.Genre(),
		Comment:     m.Comment(),
	}
	if y := m.Year(); y > 0 {
		t.Date = strconv.Itoa(y)
	}
	t.TrackNumber, t.TrackTotal = m.Track()
	t.DiscNumber, t.DiscTotal = m.Disc()
	return t, nil
}

// TrackNumber returns the 1-based track number stored in blob, or 0.
func TrackNumber(blob []byte) int {
	t, err := Parse(blob)
	if err != nil {
		return 0
	}
	return t.TrackNumber
}

// Encode writes t as an ID3v2.4 tag with UTF-8 text frames. A zero Tags
// encodes to nil.
func Encode(t container.Tags) ([]byte, error) {
	if t.IsZero() {
		return nil, nil
	}
	tg := id3v2.NewEmptyTag()
	tg.SetVersion(id3Version)
	tg.SetDefaultEncoding(id3v2.EncodingUTF8)

	text := func(id, value string) {
		if value != "" {
			tg.AddTextFrame(id, id3v2.EncodingUTF8, value)
		}
	}
	text("TIT2", t.Title)
	text("TPE1", t.Artist)
	text("TPE2", t.AlbumArtist)
	text("TALB", t.Album)
	text("TCOM", t.Composer)
	text("TPE3", t.Performer)
	text("TEXT", t.Songwriter)
	text("TCON", t.Genre)
	text("TDRC", t.Date)
	text("TYER", t.Date)
	text("TRCK", xOfN(t.TrackNumber, t.TrackTotal))
	text("TPOS", xOfN(t.DiscNumber, t.DiscTotal))
	if t.Arranger != "" {
		text("TIPL", "arranger\x00"+t.Arranger)
	}
	if t.Comment != "" {
		tg.AddCommentFrame(id3v2.CommentFrame{
			Encoding: id3v2.EncodingUTF8,
			Language: commentLang,
			Text:     t.Comment,
		})
	}

	var buf bytes.Buffer
	if _, err := tg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: id3: %w", container.ErrFormat, err)
	}
	return buf.Bytes(), nil
}

func xOfN(x, n int) string {
	switch {
	case x <= 0:
		return ""
	case n <= 0:
		return strconv.Itoa(x)
	default:
		return strconv.Itoa(x) + "/" + strconv.Itoa(n)
	}
}

package disc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tphakala/go-sacd/internal/charset"
	"github.com/tphakala/go-sacd/internal/container"
)

var (
	masterTOCID  = []byte("SACDMTOC")
	masterTextID = []byte("SACDText")
	manufID      = []byte("SACD_Man")
	twoChTOCID   = []byte("TWOCHTOC")
	mulChTOCID   = []byte("MULCHTOC")
	trackTextID  = []byte("SACDTTxt")
	genreListID  = []byte("SACD_IGL")
	accessListID = []byte("SACD_ACC")
	trackList1ID = []byte("SACDTRL1")
	trackList2ID = []byte("SACDTRL2")
)

// Timecode is a minutes:seconds:frames position at 75 frames per second.
type Timecode struct {
	Min, Sec, Frame uint8
}

// Seconds returns the timecode as fractional seconds.
func (t Timecode) Seconds() float64 {
	return float64(t.Min)*60 + float64(t.Sec) + float64(t.Frame)/container.FrameRate
}

func parseTimecode(b []byte) Timecode {
	return Timecode{Min: b[0], Sec: b[1], Frame: b[2]}
}

type masterTOC struct {
	versionMajor, versionMinor uint8

	albumSetSize  uint16
	albumSequence uint16

	areaStart [2]uint32
	areaSize  [2]uint16

	year       uint16
	month, day uint8
	charset    charset.Code

	albumTitle     string
	albumArtist    string
	albumPublisher string
	albumCopyright string
	discTitle      string
	discArtist     string
	discPublisher  string
	discCopyright  string
}

type trackText struct {
	title        string
	performer    string
	songwriter   string
	composer     string
	arranger     string
	message      string
	extraMessage string
}

type genreEntry struct {
	category uint8
	genre    uint8
}

type area struct {
	kind container.Area

	versionMajor, versionMinor uint8

	size        uint16 // sectors
	maxByteRate uint32
	sampleFreq  uint8
	frameFormat uint8
	channels    int
	loudspeaker uint8
	totalTime   Timecode
	trackOffset uint8
	trackCount  int
	trackStart  uint32
	trackEnd    uint32
	charset     charset.Code
	description string
	copyright   string

	text      []trackText
	genres    []genreEntry
	startLSN  []uint32
	lengthLSN []uint32
	startTime []Timecode
	duration  []Timecode
}

func (a *area) dst() bool {
	return a.frameFormat == frameFormatDST
}

func (a *area) hasTrack(n int) bool {
	return n >= 0 && n < a.trackCount
}

// cstring returns the NUL-terminated string at off, decoded from cs.
func cstring(b []byte, off int, cs charset.Code) string {
	if off <= 0 || off >= len(b) {
		return ""
	}
	return charset.Decode(cs, b[off:])
}

func parseMasterTOC(b []byte) (*masterTOC, error) {
	if len(b) < masterTOCSectors*lsnSize || !bytes.Equal(b[:8], masterTOCID) {
		return nil, fmt.Errorf("%w: master TOC signature not found", container.ErrFormat)
	}

	m := &masterTOC{
		versionMajor:  b[mtocVersionMajor],
		versionMinor:  b[mtocVersionMinor],
		albumSetSize:  binary.BigEndian.Uint16(b[mtocAlbumSetSize:]),
		albumSequence: binary.BigEndian.Uint16(b[mtocAlbumSequence:]),
		year:          binary.BigEndian.Uint16(b[mtocDiscYear:]),
		month:         b[mtocDiscMonth],
		day:           b[mtocDiscDay],
		charset:       charset.Code(b[mtocLocales+localeCharsetOffset]) & charset.Mask,
	}
	if m.versionMajor > supportedVersionMajor || m.versionMinor > supportedVersionMinor {
		return nil, fmt.Errorf("%w: unsupported master TOC version %d.%02d",
			container.ErrNotSupported, m.versionMajor, m.versionMinor)
	}
	m.areaStart[0] = binary.BigEndian.Uint32(b[mtocArea1TOC1:])
	m.areaStart[1] = binary.BigEndian.Uint32(b[mtocArea2TOC1:])
	m.areaSize[0] = binary.BigEndian.Uint16(b[mtocArea1TOCSize:])
	m.areaSize[1] = binary.BigEndian.Uint16(b[mtocArea2TOCSize:])

	for i := range masterTextCount {
		sec := b[(i+1)*lsnSize : (i+2)*lsnSize]
		if !bytes.Equal(sec[:8], masterTextID) {
			return nil, fmt.Errorf("%w: master text sector %d missing", container.ErrFormat, i)
		}
		if i > 0 {
			continue
		}
		text := func(field int) string {
			return cstring(sec, int(binary.BigEndian.Uint16(sec[field:])), m.charset)
		}
		m.albumTitle = text(mtextAlbumTitle)
		m.albumArtist = text(mtextAlbumArtist)
		m.albumPublisher = text(mtextAlbumPublisher)
		m.albumCopyright = text(mtextAlbumCopyright)
		m.discTitle = text(mtextDiscTitle)
		m.discArtist = text(mtextDiscArtist)
		m.discPublisher = text(mtextDiscPublisher)
		m.discCopyright = text(mtextDiscCopyright)
	}

	manuf := b[(masterTextCount+1)*lsnSize:]
	if !bytes.Equal(manuf[:8], manufID) {
		return nil, fmt.Errorf("%w: manufacturer sector missing", container.ErrFormat)
	}
	return m, nil
}

func parseAreaTOC(b []byte) (*area, error) {
	if len(b) < lsnSize {
		return nil, fmt.Errorf("%w: area TOC truncated", container.ErrFormat)
	}
	a := &area{}
	switch {
	case bytes.Equal(b[:8], twoChTOCID), bytes.Equal(b[:8], mulChTOCID):
	default:
		return nil, fmt.Errorf("%w: area TOC signature %q", container.ErrFormat, b[:8])
	}

	a.versionMajor = b[atocVersionMajor]
	a.versionMinor = b[atocVersionMinor]
	if a.versionMajor > supportedVersionMajor || a.versionMinor > supportedVersionMinor {
		return nil, fmt.Errorf("%w: unsupported area TOC version %d.%02d",
			container.ErrNotSupported, a.versionMajor, a.versionMinor)
	}
	a.size = binary.BigEndian.Uint16(b[atocSize:])
	a.maxByteRate = binary.BigEndian.Uint32(b[atocMaxByteRate:])
	a.sampleFreq = b[atocSampleFreq]
	a.frameFormat = b[atocFrameFormat] & frameFormatMask
	a.channels = int(b[atocChannelCount])
	a.loudspeaker = b[atocLoudspeaker] & loudspeakerMask
	a.totalTime = parseTimecode(b[atocTotalPlaytime:])
	a.trackOffset = b[atocTrackOffset]
	a.trackCount = int(b[atocTrackCount])
	a.trackStart = binary.BigEndian.Uint32(b[atocTrackStart:])
	a.trackEnd = binary.BigEndian.Uint32(b[atocTrackEnd:])
	a.charset = charset.Code(b[atocLanguages+localeCharsetOffset]) & charset.Mask
	a.description = cstring(b, int(binary.BigEndian.Uint16(b[atocDescription:])), a.charset)
	a.copyright = cstring(b, int(binary.BigEndian.Uint16(b[atocCopyright:])), a.charset)

	if a.channels == 2 && a.loudspeaker == 0 {
		a.kind = container.AreaTwoCh
	} else {
		a.kind = container.AreaMulCh
	}

	end := min(int(a.size)*lsnSize, len(b))
	textDone := false
	for p := lsnSize; p+8 <= end; {
		id := b[p : p+8]
		switch {
		case bytes.Equal(id, trackTextID):
			if !textDone {
				a.text = parseTrackText(b[p:end], a.trackCount, a.charset)
				textDone = true
			}
			p += lsnSize
		case bytes.Equal(id, genreListID):
			a.genres = parseGenres(b[p:end], a.trackCount)
			p += iglSectors * lsnSize
		case bytes.Equal(id, accessListID):
			p += accSectors * lsnSize
		case bytes.Equal(id, trackList1ID):
			a.startLSN, a.lengthLSN = parseTrackList1(b[p:end], a.trackCount)
			p += lsnSize
		case bytes.Equal(id, trackList2ID):
			a.startTime, a.duration = parseTrackList2(b[p:end], a.trackCount)
			p += lsnSize
		default:
			p = end
		}
	}
	return a, nil
}

func parseTrackText(b []byte, tracks int, cs charset.Code) []trackText {
	text := make([]trackText, tracks)
	for i := range tracks {
		field := trackTextPositions + 2*i
		if field+2 > len(b) {
			break
		}
		pos := int(binary.BigEndian.Uint16(b[field:]))
		if pos == 0 || pos >= len(b) {
			continue
		}
		amount := int(b[pos])
		q := pos + 4
		for j := 0; j < amount && q+2 < len(b); j++ {
			kind := b[q]
			q += 2
			s := cstring(b, q, cs)
			switch kind {
			case textTitle:
				text[i].title = s
			case textPerformer:
				text[i].performer = s
			case textSongwriter:
				text[i].songwriter = s
			case textComposer:
				text[i].composer = s
			case textArranger:
				text[i].arranger = s
			case textMessage:
				text[i].message = s
			case textExtraMessage:
				text[i].extraMessage = s
			}
			for q < len(b) && b[q] != 0 {
				q++
			}
			for q < len(b) && b[q] == 0 {
				q++
			}
		}
	}
	return text
}

func parseGenres(b []byte, tracks int) []genreEntry {
	out := make([]genreEntry, 0, tracks)
	for i := range tracks {
		off := iglGenreTable + genreEntrySize*i
		if off+genreEntrySize > len(b) {
			break
		}
		out = append(out, genreEntry{category: b[off], genre: b[off+genreGenreOffset]})
	}
	return out
}

func parseTrackList1(b []byte, tracks int) (start, length []uint32) {
	start = make([]uint32, 0, tracks)
	length = make([]uint32, 0, tracks)
	for i := range tracks {
		if trl1LengthTable+4*i+4 > len(b) {
			break
		}
		start = append(start, binary.BigEndian.Uint32(b[trl1StartTable+4*i:]))
		length = append(length, binary.BigEndian.Uint32(b[trl1LengthTable+4*i:]))
	}
	return start, length
}

func parseTrackList2(b []byte, tracks int) (start, duration []Timecode) {
	start = make([]Timecode, 0, tracks)
	duration = make([]Timecode, 0, tracks)
	for i := range tracks {
		if trl2DurationTable+4*i+4 > len(b) {
			break
		}
		start = append(start, parseTimecode(b[trl2StartTable+4*i:]))
		duration = append(duration, parseTimecode(b[trl2DurationTable+4*i:]))
	}
	return start, duration
}

func genreName(g genreEntry) string {
	if g.category != genreCategoryGeneral || g.genre == 0 || int(g.genre) >= len(genres) {
		return ""
	}
	return genres[g.genre]
}

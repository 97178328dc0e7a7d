package testutil

import (
	"encoding/binary"
)

// Disc image geometry used by BuildDisc.
const (
	DiscSectorSize    = 2048
	DiscRawSectorSize = 2064

	discMasterTOC   = 510
	discAreaTOC1    = 540
	discAreaTOC2    = 560
	discAudioStart  = 600
	discAreaSectors = 6
)

// DiscTrack is one track of a synthetic disc area.
type DiscTrack struct {
	Title     string
	Performer string
	Composer  string
	Message   string
	Genre     uint8
	// Pregap frames are stored before the track start sector.
	Pregap [][]byte
	Frames [][]byte
}

// DiscArea is a synthetic program area.
type DiscArea struct {
	Channels    int
	Loudspeaker uint8
	DST         bool
	Tracks      []DiscTrack
}

// DiscImage describes a synthetic SACD disc.
type DiscImage struct {
	// RawSectors selects 2064 byte sectors.
	RawSectors bool
	Charset    uint8

	AlbumTitle  string
	AlbumArtist string
	Year        uint16
	SetSize     uint16
	Sequence    uint16

	TwoCh *DiscArea
	MulCh *DiscArea
}

// DiscExtent is the sector range of one track.
type DiscExtent struct {
	Start  uint32
	Length uint32
}

// DiscLayout records where BuildDisc placed the tracks of each area.
type DiscLayout struct {
	TwoCh []DiscExtent
	MulCh []DiscExtent
}

// PackDiscFrames splits frames into 2048 byte audio sectors, each with a
// packet header.
func PackDiscFrames(frames [][]byte, dst bool) [][]byte {
	const (
		maxPackets = 7
		maxPacket  = 2047
	)
	infoSize := 3
	var dstBit byte
	if dst {
		infoSize = 4
		dstBit = 1
	}

	type packet struct {
		start bool
		data  []byte
	}

	var sectors [][]byte
	f, off := 0, 0
	for f < len(frames) {
		var packets []packet
		used, starts := 1, 0
		for f < len(frames) && len(packets) < maxPackets {
			start := off == 0
			overhead := 2
			if start {
				if starts == maxPackets {
					break
				}
				overhead += infoSize
			}
			avail := min(DiscSectorSize-used-overhead, maxPacket)
			if avail <= 0 {
				break
			}
			n := min(avail, len(frames[f])-off)
			packets = append(packets, packet{start: start, data: frames[f][off : off+n]})
			used += overhead + n
			if start {
				starts++
			}
			off += n
			if off == len(frames[f]) {
				f++
				off = 0
			}
		}

		sec := make([]byte, DiscSectorSize)
		sec[0] = byte(len(packets))<<5 | byte(starts)<<2 | dstBit
		p := 1
		for _, pk := range packets {
			b0 := byte(2<<3) | byte(len(pk.data)>>8)
			if pk.start {
				b0 |= 0x80
			}
			sec[p], sec[p+1] = b0, byte(len(pk.data))
			p += 2
		}
		p += starts * infoSize
		for _, pk := range packets {
			copy(sec[p:], pk.data)
			p += len(pk.data)
		}
		sectors = append(sectors, sec)
	}
	return sectors
}

func timecode(frames int) [3]byte {
	return [3]byte{byte(frames / 75 / 60), byte(frames / 75 % 60), byte(frames % 75)}
}

// putString stores s NUL-terminated at *pos in sec and records the position
// in the u16 field at field.
func putString(sec []byte, field int, pos *int, s string) {
	if s == "" {
		return
	}
	binary.BigEndian.PutUint16(sec[field:], uint16(*pos))
	copy(sec[*pos:], s)
	*pos += len(s) + 1
}

type areaImage struct {
	toc     []byte
	audio   [][]byte
	extents []DiscExtent
}

func buildArea(a *DiscArea, audioStart uint32, cs uint8) areaImage {
	img := areaImage{toc: make([]byte, discAreaSectors*DiscSectorSize)}
	be := binary.BigEndian

	lsn := audioStart
	var pregapStart []uint32
	for _, t := range a.Tracks {
		pregapStart = append(pregapStart, lsn)
		pre := PackDiscFrames(t.Pregap, a.DST)
		img.audio = append(img.audio, pre...)
		lsn += uint32(len(pre))
		sec := PackDiscFrames(t.Frames, a.DST)
		img.audio = append(img.audio, sec...)
		img.extents = append(img.extents, DiscExtent{Start: lsn, Length: uint32(len(sec))})
		lsn += uint32(len(sec))
	}

	toc := img.toc[:DiscSectorSize]
	if a.Channels == 2 && a.Loudspeaker == 0 {
		copy(toc, "TWOCHTOC")
	} else {
		copy(toc, "MULCHTOC")
	}
	toc[8], toc[9] = 1, 20
	be.PutUint16(toc[10:], discAreaSectors)
	toc[20] = 4
	if a.DST {
		toc[21] = 0
	} else {
		toc[21] = 2
	}
	toc[32] = byte(a.Channels)
	toc[33] = a.Loudspeaker
	total := 0
	for _, t := range a.Tracks {
		total += len(t.Pregap) + len(t.Frames)
	}
	tc := timecode(total)
	copy(toc[64:], tc[:])
	toc[69] = byte(len(a.Tracks))
	if len(pregapStart) > 0 {
		be.PutUint32(toc[72:], pregapStart[0])
		be.PutUint32(toc[76:], lsn-1)
	}
	toc[90] = cs

	text := img.toc[DiscSectorSize : 2*DiscSectorSize]
	copy(text, "SACDTTxt")
	pos := 8 + 2*len(a.Tracks)
	for i, t := range a.Tracks {
		items := []struct {
			kind byte
			s    string
		}{{1, t.Title}, {2, t.Performer}, {4, t.Composer}, {6, t.Message}}
		be.PutUint16(text[8+2*i:], uint16(pos))
		amountAt := pos
		pos += 4
		amount := 0
		for _, it := range items {
			if it.s == "" {
				continue
			}
			text[pos] = it.kind
			pos += 2
			copy(text[pos:], it.s)
			pos += len(it.s) + 1
			amount++
		}
		text[amountAt] = byte(amount)
		pos++
	}

	igl := img.toc[2*DiscSectorSize : 4*DiscSectorSize]
	copy(igl, "SACD_IGL")
	for i, t := range a.Tracks {
		off := 8 + 255*12 + 4 + 4*i
		igl[off] = 1
		igl[off+3] = t.Genre
	}

	trl1 := img.toc[4*DiscSectorSize : 5*DiscSectorSize]
	copy(trl1, "SACDTRL1")
	trl2 := img.toc[5*DiscSectorSize : 6*DiscSectorSize]
	copy(trl2, "SACDTRL2")
	for i, e := range img.extents {
		be.PutUint32(trl1[8+4*i:], e.Start)
		be.PutUint32(trl1[8+255*4+4*i:], e.Length)
		d := timecode(len(a.Tracks[i].Frames))
		copy(trl2[8+255*4+4*i:], d[:])
	}
	return img
}

// BuildDisc serialises img and returns the image with the track layout.
func BuildDisc(img DiscImage) ([]byte, DiscLayout) {
	be := binary.BigEndian
	sectors := map[uint32][]byte{}
	var layout DiscLayout

	master := make([]byte, 10*DiscSectorSize)
	copy(master, "SACDMTOC")
	master[8], master[9] = 1, 20
	be.PutUint16(master[16:], img.SetSize)
	be.PutUint16(master[18:], img.Sequence)
	be.PutUint16(master[120:], img.Year)
	master[138] = img.Charset

	audio := uint32(discAudioStart)
	place := func(a *DiscArea, tocStart uint32, tocField, sizeField int) []DiscExtent {
		if a == nil {
			return nil
		}
		ai := buildArea(a, audio, img.Charset)
		be.PutUint32(master[tocField:], tocStart)
		be.PutUint32(master[tocField+4:], tocStart+discAreaSectors)
		be.PutUint16(master[sizeField:], discAreaSectors)
		for i := range discAreaSectors {
			sectors[tocStart+uint32(i)] = ai.toc[i*DiscSectorSize : (i+1)*DiscSectorSize]
		}
		for _, s := range ai.audio {
			sectors[audio] = s
			audio++
		}
		return ai.extents
	}
	layout.TwoCh = place(img.TwoCh, discAreaTOC1, 64, 84)
	layout.MulCh = place(img.MulCh, discAreaTOC2, 72, 86)

	for i := 1; i <= 8; i++ {
		sec := master[i*DiscSectorSize : (i+1)*DiscSectorSize]
		copy(sec, "SACDText")
		if i > 1 {
			continue
		}
		pos := 64
		putString(sec, 16, &pos, img.AlbumTitle)
		putString(sec, 18, &pos, img.AlbumArtist)
	}
	copy(master[9*DiscSectorSize:], "SACD_Man")
	for i := range 10 {
		sectors[discMasterTOC+uint32(i)] = master[i*DiscSectorSize : (i+1)*DiscSectorSize]
	}

	size := DiscSectorSize
	header := 0
	if img.RawSectors {
		size = DiscRawSectorSize
		header = 12
	}
	out := make([]byte, int(audio)*size)
	for lsn, data := range sectors {
		copy(out[int(lsn)*size+header:], data)
	}
	return out, layout
}

// Package dsdiff reads Philips DSDIFF files holding plain DSD or DST audio.
//
// A file is a FRM8 form of big-endian chunks, each padded to even length.
// Edit master files carry DIIN/MARK track markers and one ID3 chunk per
// track, so a single file may expose several tracks.
package dsdiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pion/logging"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/container/id3tags"
	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/media"
)

const (
	dstIndexEntrySize = 12
	crcSize           = 4
	frteSize          = 6
)

type subsong struct {
	start float64
	stop  float64
}

type id3Tag struct {
	index int
	data  []byte
}

// Reader implements container.Reader for DSDIFF files.
type Reader struct {
	log  logging.LeveledLogger
	src  media.Source
	area container.Area

	version    uint32
	sampleRate int
	channels   int
	lsConfig   int
	dst        bool

	frm8Size   uint64
	dstiOffset int64
	dstiSize   uint64
	dataOffset int64
	dataSize   uint64
	frameRate  int
	frameSize  int
	frameCount uint32

	subsongs []subsong
	markers  []marker

	id3Offset  int64
	tags       []id3Tag
	tagsIndexd bool

	current       int
	currentOffset int64
	currentSize   int64
}

// New returns a DSDIFF reader logging to the "dsdiff" scope of f.
func New(f logging.LoggerFactory) *Reader {
	return &Reader{log: logutil.Scoped(f, "dsdiff")}
}

// Probe reports whether head starts like a DSDIFF file.
func Probe(head []byte) bool {
	return len(head) >= 16 && string(head[:4]) == "FRM8" && string(head[12:16]) == "DSD "
}

func formatErr(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", container.ErrFormat, what)
	}
	return fmt.Errorf("%w: %s: %w", container.ErrFormat, what, err)
}

// Open walks the chunk tree and builds the track list.
func (r *Reader) Open(src media.Source, mode container.Mode) error {
	*r = Reader{log: r.log, src: src, area: r.area}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}

	ck, err := readChunk(src)
	if err != nil || ck.id != "FRM8" {
		return formatErr("missing FRM8 chunk", err)
	}
	form, err := readID(src)
	if err != nil || form != "DSD " {
		return formatErr("form type is not DSD", err)
	}
	r.frm8Size = ck.size
	r.id3Offset = chunkHeaderSize + int64(ck.size)

	skipEditMaster := mode.Has(container.ModeSingleTrack)
	var propTag *id3Tag

	end := chunkHeaderSize + int64(r.frm8Size)
	for src.Position() < end {
		ck, err := readChunk(src)
		if err != nil {
			return formatErr("truncated chunk header", err)
		}
		body := src.Position()

		switch {
		case ck.id == "FVER" && ck.size == 4:
			if r.version, err = readU32(src); err != nil {
				return formatErr("FVER", err)
			}
		case ck.id == "PROP":
			if propTag, err = r.readProp(src, ck); err != nil {
				return err
			}
		case ck.id == "DSD ":
			r.dataOffset = body
			r.dataSize = ck.size
			r.frameRate = container.FrameRate
			r.frameSize = container.FrameBytes(r.sampleRate, r.frameRate, r.channels)
			if r.frameSize == 0 {
				return formatErr("sound data before PROP", nil)
			}
			r.frameCount = uint32(r.dataSize / uint64(r.frameSize))
			r.subsongs = append(r.subsongs, subsong{stop: float64(r.frameCount) / float64(r.frameRate)})
		case ck.id == "DST ":
			if err := r.readDSTHeader(src, ck); err != nil {
				return err
			}
		case ck.id == "DSTI" && ck.size >= dstIndexEntrySize:
			r.dstiOffset = body
			r.dstiSize = ck.size
		case ck.id == "DIIN" && !skipEditMaster:
			if err := r.readDIIN(src, ck); err != nil {
				return err
			}
		case ck.id == "ID3 " && !skipEditMaster:
			r.id3Offset = min(r.id3Offset, body-chunkHeaderSize)
			data := make([]byte, ck.size)
			if err := media.ReadFull(src, data); err != nil {
				return formatErr("ID3 chunk", err)
			}
			r.tags = append(r.tags, id3Tag{index: len(r.tags), data: data})
		}

		if err := skipTo(src, body+ck.padded()); err != nil {
			return err
		}
	}

	if len(r.tags) == 0 && propTag != nil {
		r.tags = append(r.tags, *propTag)
	}
	r.applyMarkers(mode.Has(container.ModeFullPlayback))
	if len(r.subsongs) == 0 {
		return formatErr("no sound data", nil)
	}

	r.currentOffset = r.dataOffset
	r.currentSize = int64(r.dataSize)
	r.log.Debugf("opened: %d ch, %d Hz, dst=%v, %d tracks", r.channels, r.sampleRate, r.dst, len(r.subsongs))
	return skipTo(src, r.dataOffset)
}

func (r *Reader) readProp(src media.Source, prop chunk) (*id3Tag, error) {
	kind, err := readID(src)
	if err != nil || kind != "SND " {
		return nil, formatErr("PROP is not SND", err)
	}
	var tag *id3Tag
	end := src.Position() + int64(prop.size) - 4
	for src.Position() < end {
		ck, err := readChunk(src)
		if err != nil {
			return nil, formatErr("truncated PROP", err)
		}
		body := src.Position()
		switch {
		case ck.id == "FS  " && ck.size == 4:
			v, err := readU32(src)
			if err != nil {
				return nil, formatErr("FS", err)
			}
			r.sampleRate = int(v)
		case ck.id == "CHNL":
			n, err := readU16(src)
			if err != nil {
				return nil, formatErr("CHNL", err)
			}
			r.channels = int(n)
			r.lsConfig = container.LoudspeakerConfigForChannels(r.channels)
		case ck.id == "CMPR":
			id, err := readID(src)
			if err != nil {
				return nil, formatErr("CMPR", err)
			}
			switch id {
			case "DSD ":
				r.dst = false
			case "DST ":
				r.dst = true
			}
		case ck.id == "LSCO":
			v, err := readU16(src)
			if err != nil {
				return nil, formatErr("LSCO", err)
			}
			r.lsConfig = int(v)
		case ck.id == "ID3 ":
			data := make([]byte, ck.size)
			if err := media.ReadFull(src, data); err != nil {
				return nil, formatErr("PROP ID3", err)
			}
			tag = &id3Tag{data: data}
		}
		if err := skipTo(src, body+ck.padded()); err != nil {
			return nil, err
		}
	}
	return tag, nil
}

func (r *Reader) readDSTHeader(src media.Source, dst chunk) error {
	r.dataOffset = src.Position()
	r.dataSize = dst.size
	ck, err := readChunk(src)
	if err != nil || ck.id != "FRTE" || ck.size != frteSize {
		return formatErr("DST without FRTE", err)
	}
	r.dataOffset += chunkHeaderSize + int64(ck.size)
	r.dataSize -= chunkHeaderSize + ck.size

	if r.frameCount, err = readU32(src); err != nil {
		return formatErr("FRTE", err)
	}
	rate, err := readU16(src)
	if err != nil || rate == 0 {
		return formatErr("FRTE frame rate", err)
	}
	r.frameRate = int(rate)
	r.frameSize = container.FrameBytes(r.sampleRate, r.frameRate, r.channels)
	r.subsongs = append(r.subsongs, subsong{stop: float64(r.frameCount) / float64(r.frameRate)})
	return nil
}

func (r *Reader) readDIIN(src media.Source, diin chunk) error {
	end := src.Position() + int64(diin.size)
	for src.Position() < end {
		ck, err := readChunk(src)
		if err != nil {
			return formatErr("truncated DIIN", err)
		}
		body := src.Position()
		if ck.id == "MARK" && ck.size >= markerSize {
			var b [markerSize]byte
			if err := media.ReadFull(src, b[:]); err == nil {
				r.markers = append(r.markers, parseMarker(b[:]))
			}
		}
		if err := skipTo(src, body+ck.padded()); err != nil {
			return err
		}
	}
	return nil
}

// applyMarkers splits the sound data at TrackStart markers. A start closes
// the previous track if that track would overlap it.
func (r *Reader) applyMarkers(fullPlayback bool) {
	if len(r.subsongs) == 0 || r.sampleRate == 0 {
		return
	}
	starts := 0
	total := float64(r.frameCount) / float64(r.frameRate)
	for _, m := range r.markers {
		switch m.markType {
		case markTrackStart:
			if starts > 0 {
				r.subsongs = append(r.subsongs, subsong{})
			}
			starts++
			last := len(r.subsongs) - 1
			r.subsongs[last] = subsong{start: m.time(r.sampleRate), stop: total}
			if last > 0 && r.subsongs[last-1].stop > r.subsongs[last].start {
				r.subsongs[last-1].stop = r.subsongs[last].start
			}
		case markTrackStop:
			if !fullPlayback {
				r.subsongs[len(r.subsongs)-1].stop = m.time(r.sampleRate)
			}
		}
	}
}

// Close drops the track list and tags.
func (r *Reader) Close() error {
	r.current = 0
	r.subsongs = nil
	r.markers = nil
	r.tags = nil
	r.tagsIndexd = false
	r.dstiSize = 0
	return nil
}

// TrackCount returns the number of tracks when the channel count belongs to area.
func (r *Reader) TrackCount(area container.Area) int {
	switch {
	case area == container.AreaBoth,
		area == container.AreaTwoCh && r.channels <= 2,
		area == container.AreaMulCh && r.channels > 2:
		return len(r.subsongs)
	default:
		return 0
	}
}

func (r *Reader) SetArea(area container.Area) { r.area = area }
func (r *Reader) Area() container.Area { return r.area }
func (r *Reader) Channels() int { return r.channels }
func (r *Reader) LoudspeakerConfig() int { return r.lsConfig }
func (r *Reader) SampleRate() int { return r.sampleRate }
func (r *Reader) FrameRate() int { return r.frameRate }
func (r *Reader) IsDST() bool { return r.dst }

// Duration returns the length of the current track.
func (r *Reader) Duration() float64 {
	return r.TrackDuration(r.current)
}

// TrackDuration returns the length of track index.
func (r *Reader) TrackDuration(index int) float64 {
	if index < 0 || index >= len(r.subsongs) {
		return 0
	}
	return r.subsongs[index].stop - r.subsongs[index].start
}

func (r *Reader) dstiEntries() uint32 {
	return uint32(r.dstiSize / dstIndexEntrySize)
}

// timeOffset maps a time to a byte offset in the sound data.
func (r *Reader) timeOffset(t float64) int64 {
	if r.frameCount == 0 {
		return 0
	}
	return int64(math.Round(t * float64(r.frameRate) / float64(r.frameCount) * float64(r.dataSize)))
}

// SetTrack positions the reader at the start of track index.
func (r *Reader) SetTrack(index int, _ container.Area, _ uint32) error {
	if index < 0 || index >= len(r.subsongs) {
		return fmt.Errorf("%w: %d", container.ErrNoTrack, index)
	}
	r.current = index
	t0, t1 := r.subsongs[index].start, r.subsongs[index].stop
	offset := r.timeOffset(t0)
	size := r.timeOffset(t1) - offset

	switch {
	case r.dst && r.dstiSize > 0:
		f0, f1 := uint32(t0*float64(r.frameRate)), uint32(t1*float64(r.frameRate))
		r.currentOffset = r.dataOffset + offset
		if f0 < r.dstiEntries()-1 {
			off, err := r.dstiForFrame(f0)
			if err != nil {
				return err
			}
			r.currentOffset = off
		}
		r.currentSize = size
		if f1 < r.dstiEntries()-1 {
			off, err := r.dstiForFrame(f1)
			if err != nil {
				return err
			}
			r.currentSize = off - r.currentOffset
		}
	case r.dst:
		r.currentOffset = r.dataOffset + offset
		r.currentSize = size
	default:
		fs := int64(r.frameSize)
		r.currentOffset = r.dataOffset + offset/fs*fs
		r.currentSize = size / fs * fs
	}
	return skipTo(r.src, r.currentOffset)
}

// dstiForFrame returns the offset of the DSTF chunk header of frame n.
func (r *Reader) dstiForFrame(n uint32) (int64, error) {
	n = min(n, r.dstiEntries()-1)
	pos := r.src.Position()
	if err := skipTo(r.src, r.dstiOffset+int64(n)*dstIndexEntrySize); err != nil {
		return 0, err
	}
	var b [dstIndexEntrySize]byte
	err := media.ReadFull(r.src, b[:])
	if serr := skipTo(r.src, pos); serr != nil {
		return 0, serr
	}
	if err != nil {
		return 0, fmt.Errorf("%w: DSTI entry %d: %w", container.ErrIO, n, err)
	}
	return int64(binary.BigEndian.Uint64(b[:8])) - chunkHeaderSize, nil
}

// ReadFrame returns the next DSTF payload or the next block of DSD bytes.
func (r *Reader) ReadFrame(buf []byte) (container.Frame, error) {
	end := r.currentOffset + r.currentSize
	if r.dst {
		return r.readDSTFrame(buf, end)
	}

	n := min(int64(len(buf)), max(0, end-r.src.Position()))
	if n > 0 {
		read, err := io.ReadFull(r.src, buf[:n])
		if err != nil {
			// The data range is within the chunk, so a short read means the
			// file is damaged, not finished.
			return container.Frame{}, fmt.Errorf("%w: DSD data at %d: %w", container.ErrIO, r.src.Position()-int64(read), err)
		}
		read -= read % r.channels
		if read > 0 {
			return container.Frame{Kind: container.FrameDSD, Data: buf[:read]}, nil
		}
	}
	return container.Frame{}, io.EOF
}

func (r *Reader) readDSTFrame(buf []byte, end int64) (container.Frame, error) {
	for r.src.Position() < end {
		ck, err := readChunk(r.src)
		if err != nil {
			break
		}
		switch {
		case ck.id == "DSTF" && ck.size <= uint64(len(buf)):
			data := buf[:ck.size]
			if err := media.ReadFull(r.src, data); err != nil {
				return container.Frame{}, io.EOF
			}
			if ck.size&1 == 1 {
				if _, err := r.src.Skip(1); err != nil {
					return container.Frame{}, io.EOF
				}
			}
			return container.Frame{Kind: container.FrameDST, Data: data}, nil
		case ck.id == "DSTC" && ck.size == crcSize:
			if _, err := r.src.Skip(crcSize); err != nil {
				return container.Frame{}, io.EOF
			}
		default:
			// Lost sync: retry one byte further on.
			if _, err := r.src.Skip(1 - chunkHeaderSize); err != nil {
				return container.Frame{}, io.EOF
			}
		}
	}
	return container.Frame{}, io.EOF
}

// Seek moves proportionally within the current track, through DSTI when the
// stream is DST and indexed, or to a frame boundary for plain DSD.
func (r *Reader) Seek(seconds float64) error {
	var offset int64
	if d := r.Duration(); d > 0 {
		offset = min(int64(float64(r.currentSize)*seconds/d), r.currentSize)
	}
	switch {
	case r.dst && r.dstiSize > 0 && r.frameCount > 0:
		frame := min(uint32((r.subsongs[r.current].start+seconds)*float64(r.frameRate)), r.frameCount-1)
		if frame < r.dstiEntries()-1 {
			off, err := r.dstiForFrame(frame)
			if err != nil {
				return err
			}
			offset = off - r.currentOffset
		}
	case !r.dst:
		fs := int64(r.frameSize)
		offset = offset / fs * fs
	}
	return skipTo(r.src, r.currentOffset+offset)
}

func (r *Reader) indexTags() {
	if r.tagsIndexd {
		return
	}
	r.tagsIndexd = true
	for i := range r.tags {
		if n := id3tags.TrackNumber(r.tags[i].data); n > 0 {
			r.tags[i].index = n - 1
		} else {
			r.tags[i].index = i
		}
	}
}

// Tags parses the ID3 chunk that belongs to track index.
func (r *Reader) Tags(index int) container.Tags {
	r.indexTags()
	for _, t := range r.tags {
		if t.index != index {
			continue
		}
		tags, err := id3tags.Parse(t.data)
		if err != nil {
			r.log.Debugf("track %d: %v", index, err)
		}
		return tags
	}
	return container.Tags{}
}

// SetTags replaces or removes the ID3 chunk of track index. Changes are
// written by Commit.
func (r *Reader) SetTags(index int, tags container.Tags) error {
	r.indexTags()
	pos := -1
	for i, t := range r.tags {
		if t.index == index {
			pos = i
			break
		}
	}
	if tags.IsZero() {
		if pos >= 0 {
			r.tags = append(r.tags[:pos], r.tags[pos+1:]...)
		}
		return nil
	}
	blob, err := id3tags.Encode(tags)
	if err != nil {
		return err
	}
	if pos < 0 {
		r.tags = append(r.tags, id3Tag{index: index, data: blob})
		return nil
	}
	r.tags[pos].data = blob
	return nil
}

// Commit truncates the file at the first top-level ID3 chunk, appends the
// current tags and rewrites the FRM8 size.
func (r *Reader) Commit() error {
	if err := r.src.Truncate(r.id3Offset); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	if err := skipTo(r.src, r.id3Offset); err != nil {
		return err
	}
	for _, t := range r.tags {
		if err := writeChunkHeader(r.src, "ID3 ", uint64(len(t.data))); err != nil {
			return fmt.Errorf("%w: %w", container.ErrIO, err)
		}
		if _, err := r.src.Write(t.data); err != nil {
			return fmt.Errorf("%w: %w", container.ErrIO, err)
		}
		if r.src.Position()&1 == 1 {
			if _, err := r.src.Write([]byte{0}); err != nil {
				return fmt.Errorf("%w: %w", container.ErrIO, err)
			}
		}
	}
	r.frm8Size = uint64(r.src.Position() - chunkHeaderSize)
	if err := skipTo(r.src, 0); err != nil {
		return err
	}
	if err := writeChunkHeader(r.src, "FRM8", r.frm8Size); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	return skipTo(r.src, r.currentOffset)
}

var _ container.Reader = (*Reader)(nil)

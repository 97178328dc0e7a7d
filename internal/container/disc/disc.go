// Package disc reads SACD disc images and raw SACD drives.
//
// The master TOC at sector 510 points at up to two area TOCs, one for the
// two-channel program and one for the multichannel program. Audio sectors
// carry packets that are reassembled into 1/75 s frames. Images with 2064
// byte raw sectors are detected and the 12-byte sector header is skipped.
package disc

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/pion/logging"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/media"
)

type packetInfo struct {
	frameStart bool
	dataType   uint8
	length     int
}

// Reader implements container.Reader for SACD disc images.
type Reader struct {
	log logging.LeveledLogger
	src media.Source

	editMaster bool

	sectorSize   int
	headerOffset int

	master *masterTOC
	areas  []*area
	twoCh  int // index into areas, -1 when absent
	mulCh  int

	area        container.Area
	trackArea   container.Area
	trackNumber int

	startLSN   uint32
	lengthLSN  uint32
	currentLSN uint32

	raw         []byte
	sectorDST   bool
	packets     [maxPackets]packetInfo
	packetCount int
	packetIdx   int
	bufOffset   int

	badReads int
}

// New returns a disc reader logging to the "disc" scope of f.
func New(f logging.LoggerFactory) *Reader {
	return &Reader{log: logutil.Scoped(f, "disc"), twoCh: -1, mulCh: -1}
}

// SetEditMaster makes tracks span from their area TOC start to the next
// track start, so pre-gaps are played as part of the previous track.
func (r *Reader) SetEditMaster(on bool) {
	r.editMaster = on
}

// Probe detects the sector size of a disc image. It returns 0 when src
// carries no master TOC.
func Probe(src media.Source) int {
	for _, c := range []struct{ size, offset int }{{lsnSize, 0}, {psnSize, psnHeaderSize}} {
		id := make([]byte, len(masterTOCID))
		if _, err := src.Seek(int64(masterTOCStart*c.size+c.offset), io.SeekStart); err != nil {
			continue
		}
		if media.ReadFull(src, id) == nil && bytes.Equal(id, masterTOCID) {
			return c.size
		}
	}
	return 0
}

// Open reads the master TOC and the area TOCs.
func (r *Reader) Open(src media.Source, mode container.Mode) error {
	*r = Reader{
		log:        r.log,
		src:        src,
		editMaster: r.editMaster,
		area:       r.area,
		twoCh:      -1,
		mulCh:      -1,
	}

	switch Probe(src) {
	case lsnSize:
		r.sectorSize = lsnSize
	case psnSize:
		r.sectorSize = psnSize
		r.headerOffset = psnHeaderSize
	default:
		return fmt.Errorf("%w: no SACD master TOC", container.ErrFormat)
	}
	r.raw = make([]byte, r.sectorSize)

	b, err := r.readBlocks(masterTOCStart, masterTOCSectors)
	if err != nil {
		return err
	}
	if r.master, err = parseMasterTOC(b); err != nil {
		return err
	}

	for i, start := range r.master.areaStart {
		if start == 0 {
			continue
		}
		b, err := r.readBlocks(start, uint32(r.master.areaSize[i]))
		if err != nil {
			r.log.Warnf("area %d TOC at sector %d unreadable: %v", i+1, start, err)
			continue
		}
		a, err := parseAreaTOC(b)
		if err != nil {
			r.log.Warnf("area %d TOC at sector %d: %v", i+1, start, err)
			continue
		}
		switch {
		case a.kind == container.AreaTwoCh && r.twoCh < 0:
			r.twoCh = len(r.areas)
		case a.kind == container.AreaMulCh && r.mulCh < 0:
			r.mulCh = len(r.areas)
		default:
			continue
		}
		r.areas = append(r.areas, a)
		r.log.Debugf("%s area: %d tracks, %d channels, dst=%t", a.kind, a.trackCount, a.channels, a.dst())
	}

	r.log.Infof("SACD %d.%02d, %d byte sectors, 2ch=%t mulch=%t",
		r.master.versionMajor, r.master.versionMinor, r.sectorSize, r.twoCh >= 0, r.mulCh >= 0)
	return nil
}

// readBlocks reads count logical sectors starting at lsn.
func (r *Reader) readBlocks(lsn, count uint32) ([]byte, error) {
	out := make([]byte, int(count)*lsnSize)
	if r.sectorSize == lsnSize {
		if _, err := r.src.Seek(int64(lsn)*lsnSize, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: %w", container.ErrIO, err)
		}
		if err := media.ReadFull(r.src, out); err != nil {
			return nil, fmt.Errorf("%w: sectors %d+%d: %w", container.ErrIO, lsn, count, err)
		}
		return out, nil
	}
	for i := range count {
		if _, err := r.src.Seek(int64(lsn+i)*psnSize+psnHeaderSize, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w: %w", container.ErrIO, err)
		}
		if err := media.ReadFull(r.src, out[int(i)*lsnSize:int(i+1)*lsnSize]); err != nil {
			return nil, fmt.Errorf("%w: sector %d: %w", container.ErrIO, lsn+i, err)
		}
	}
	return out, nil
}

// Close drops the parsed TOCs.
func (r *Reader) Close() error {
	r.master = nil
	r.areas = nil
	r.twoCh, r.mulCh = -1, -1
	r.raw = nil
	return nil
}

func (r *Reader) getArea(a container.Area) *area {
	switch a {
	case container.AreaTwoCh:
		if r.twoCh >= 0 {
			return r.areas[r.twoCh]
		}
	case container.AreaMulCh:
		if r.mulCh >= 0 {
			return r.areas[r.mulCh]
		}
	}
	return nil
}

// TrackCount returns the number of tracks in area. AreaBoth counts both
// programs.
func (r *Reader) TrackCount(a container.Area) int {
	if a == container.AreaBoth {
		return r.TrackCount(container.AreaTwoCh) + r.TrackCount(container.AreaMulCh)
	}
	if ar := r.getArea(a); ar != nil {
		return ar.trackCount
	}
	return 0
}

// SetArea selects the area used by the format queries.
func (r *Reader) SetArea(a container.Area) {
	r.area = a
	r.trackArea = a
}

func (r *Reader) Area() container.Area { return r.area }

func (r *Reader) current() *area { return r.getArea(r.trackArea) }

func (r *Reader) Channels() int {
	if a := r.current(); a != nil {
		return a.channels
	}
	return 0
}

func (r *Reader) LoudspeakerConfig() int {
	if a := r.current(); a != nil {
		return int(a.loudspeaker)
	}
	return 0
}

func (r *Reader) SampleRate() int { return container.SampleRate64 }

func (r *Reader) FrameRate() int { return container.FrameRate }

func (r *Reader) IsDST() bool {
	if a := r.current(); a != nil {
		return a.dst()
	}
	return false
}

// BadReads returns the number of sectors that failed to read or carried a
// malformed packet layout since Open.
func (r *Reader) BadReads() int {
	return r.badReads
}

// Duration returns the length of the current track.
func (r *Reader) Duration() float64 {
	return r.trackDuration(r.current(), r.trackNumber)
}

// TrackDuration returns the length of track index in the selected area.
func (r *Reader) TrackDuration(index int) float64 {
	return r.trackDuration(r.current(), index)
}

func (r *Reader) trackDuration(a *area, n int) float64 {
	if a == nil || n < 0 || n >= len(a.duration) {
		return 0
	}
	return a.duration[n].Seconds()
}

// trackBounds returns the first sector and the sector count of track n.
func (r *Reader) trackBounds(a *area, n int) (start, length uint32) {
	if !r.editMaster {
		if n < len(a.startLSN) && n < len(a.lengthLSN) {
			return a.startLSN[n], a.lengthLSN[n]
		}
		return 0, 0
	}
	if n == 0 {
		start = a.trackStart
	} else if n < len(a.startLSN) {
		start = a.startLSN[n]
	}
	switch {
	case n+1 < a.trackCount && n+1 < len(a.startLSN):
		length = a.startLSN[n+1] - start
	case a.trackEnd >= start:
		length = a.trackEnd - start + 1
	}
	return start, length
}

// SetTrack positions the reader offset sectors into track index of area.
func (r *Reader) SetTrack(index int, a container.Area, offset uint32) error {
	ar := r.getArea(a)
	if ar == nil || !ar.hasTrack(index) {
		return fmt.Errorf("%w: track %d in %s area", container.ErrNoTrack, index, a)
	}
	r.trackArea = a
	r.trackNumber = index
	r.startLSN, r.lengthLSN = r.trackBounds(ar, index)
	r.currentLSN = r.startLSN + offset
	r.resetSector()

	pos := int64(r.currentLSN)*int64(r.sectorSize) + int64(r.headerOffset)
	if _, err := r.src.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	return nil
}

func (r *Reader) resetSector() {
	r.packetCount = 0
	r.packetIdx = 0
	r.bufOffset = 0
}

// readSector loads the next audio sector and parses its packet header.
func (r *Reader) readSector() error {
	var err error
	pos := int64(r.currentLSN) * int64(r.sectorSize)
	for range maxReadAttempts {
		if _, err = r.src.Seek(pos, io.SeekStart); err != nil {
			continue
		}
		if err = media.ReadFull(r.src, r.raw); err == nil {
			break
		}
	}
	r.currentLSN++
	r.resetSector()
	if err != nil {
		return err
	}

	data := r.raw[r.headerOffset : r.headerOffset+lsnSize]
	h := data[0]
	r.packetCount = int(h >> 5)
	frameInfos := int(h>>2) & 0x07
	r.sectorDST = h&0x01 != 0

	off := sectorHeaderSize
	for i := range r.packetCount {
		b0, b1 := data[off], data[off+1]
		r.packets[i] = packetInfo{
			frameStart: b0&0x80 != 0,
			dataType:   (b0 >> 3) & 0x07,
			length:     int(b0&0x07)<<8 | int(b1),
		}
		off += packetInfoSize
	}
	if r.sectorDST {
		off += frameInfos * frameInfoSizeDST
	} else {
		off += frameInfos * frameInfoSizeDSD
	}
	r.bufOffset = off
	return nil
}

func (r *Reader) frame(buf []byte, size int, dst bool) container.Frame {
	if dst {
		return container.Frame{Kind: container.FrameDST, Data: buf[:size]}
	}
	return container.Frame{Kind: container.FrameDSD, Data: buf[:size]}
}

func (r *Reader) invalid(format string, args ...any) (container.Frame, error) {
	r.badReads++
	r.resetSector()
	r.log.Warnf(format, args...)
	return container.Frame{Kind: container.FrameInvalid}, nil
}

// ReadFrame reassembles the next frame from the audio packets of the track.
// A sector that cannot be read or that describes an impossible packet layout
// yields a FrameInvalid frame and the rest of that sector is dropped.
func (r *Reader) ReadFrame(buf []byte) (container.Frame, error) {
	if r.raw == nil {
		return container.Frame{}, fmt.Errorf("%w: reader is closed", container.ErrIO)
	}
	end := r.startLSN + r.lengthLSN
	size := 0
	started, dst := false, false

	for {
		if r.packetIdx == r.packetCount {
			if r.currentLSN >= end {
				break
			}
			lsn := r.currentLSN
			if err := r.readSector(); err != nil {
				return r.invalid("sector %d unreadable after %d attempts: %v", lsn, maxReadAttempts, err)
			}
		}

		for r.packetIdx < r.packetCount {
			p := r.packets[r.packetIdx]
			if r.bufOffset+p.length > lsnSize {
				return r.invalid("sector %d: packet overruns sector", r.currentLSN-1)
			}
			if p.dataType == dataTypeAudio {
				if p.frameStart {
					if started {
						return r.frame(buf, size, dst), nil
					}
					started = true
					dst = r.sectorDST
					size = 0
				}
				if started {
					if size+p.length > len(buf) {
						return r.invalid("sector %d: frame exceeds %d bytes", r.currentLSN-1, len(buf))
					}
					data := r.raw[r.headerOffset+r.bufOffset:]
					copy(buf[size:], data[:p.length])
					size += p.length
				}
			}
			r.bufOffset += p.length
			r.packetIdx++
		}
	}

	if started {
		return r.frame(buf, size, dst), nil
	}
	return container.Frame{}, io.EOF
}

// Seek moves to seconds from the start of the current track. The position is
// interpolated linearly over the track sectors.
func (r *Reader) Seek(seconds float64) error {
	duration := r.Duration()
	if duration <= 0 {
		return fmt.Errorf("%w: track has no duration", container.ErrNotSupported)
	}
	offset := uint32(float64(r.lengthLSN) * seconds / duration)
	if offset >= r.lengthLSN && r.lengthLSN > 0 {
		offset = r.lengthLSN - 1
	}
	return r.SetTrack(r.trackNumber, r.trackArea, offset)
}

// Tags returns the metadata of track index, counted over the two-channel
// area first and then the multichannel area.
func (r *Reader) Tags(index int) container.Tags {
	if r.master == nil || index < 0 {
		return container.Tags{}
	}
	n := index
	var a *area
	for _, ar := range []*area{r.getArea(container.AreaTwoCh), r.getArea(container.AreaMulCh)} {
		if ar == nil {
			continue
		}
		if n < ar.trackCount {
			a = ar
			break
		}
		n -= ar.trackCount
	}
	if a == nil {
		return container.Tags{}
	}

	m := r.master
	t := container.Tags{
		Album:       m.albumTitle,
		Artist:      m.albumArtist,
		AlbumArtist: m.albumArtist,
		TrackNumber: n + 1,
		TrackTotal:  a.trackCount,
	}
	if m.year > 0 {
		t.Date = strconv.Itoa(int(m.year))
	}
	if m.albumSetSize > 1 {
		t.DiscNumber = int(m.albumSequence)
		t.DiscTotal = int(m.albumSetSize)
	}
	if n < len(a.text) {
		tt := a.text[n]
		t.Title = tt.title
		t.Composer = tt.composer
		t.Performer = tt.performer
		t.Songwriter = tt.songwriter
		t.Arranger = tt.arranger
		t.Comment = tt.message
	}
	if n < len(a.genres) {
		t.Genre = genreName(a.genres[n])
	}
	return t
}

// SetTags is not supported on disc media.
func (r *Reader) SetTags(int, container.Tags) error {
	return fmt.Errorf("%w: disc media is read-only", container.ErrNotSupported)
}

// Commit is a no-op on disc media.
func (r *Reader) Commit() error {
	return nil
}

var _ container.Reader = (*Reader)(nil)

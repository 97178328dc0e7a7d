// Package dsf reads Sony DSD Stream Files.
//
// A DSF file holds one track of block-interleaved DSD: block_size bytes of
// channel 0, then block_size bytes of channel 1 and so on. All header fields
// are little-endian. An optional ID3v2 tag sits at the end of the file.
package dsf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/pion/logging"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/container/id3tags"
	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/media"
)

// Chunk layout.
const (
	chunkHeaderSize = 12
	dsdChunkSize    = 28
	fmtChunkSize    = 52

	offFileSize  = 12
	offID3Offset = 20

	offFmtVersion     = 12
	offFmtFormatID    = 16
	offFmtChannelType = 20
	offFmtChannels    = 24
	offFmtSampleRate  = 28
	offFmtBits        = 32
	offFmtSampleCount = 36
	offFmtBlockSize   = 44

	maxChannels = 6
	bitsLSB     = 1
	bitsMSB     = 8
)

// Reader implements container.Reader for DSF files.
type Reader struct {
	log logging.LeveledLogger
	src media.Source

	area        container.Area
	fileSize    uint64
	id3Offset   uint64
	version     uint32
	channels    int
	lsConfig    int
	sampleRate  int
	lsb         bool
	sampleCount uint64
	blockSize   int

	dataOffset int64

	// block holds one group of per-channel blocks. blockEnd is the number
	// of valid bytes per channel in it and remain the valid bytes per
	// channel not loaded yet.
	block       []byte
	blockOffset int
	blockEnd    int
	remain      uint64

	id3       []byte
	id3Loaded bool
}

// New returns a DSF reader logging to the "dsf" scope of f.
func New(f logging.LoggerFactory) *Reader {
	return &Reader{log: logutil.Scoped(f, "dsf")}
}

// Probe reports whether head starts like a DSF file.
func Probe(head []byte) bool {
	return len(head) >= 12 && string(head[:4]) == "DSD " &&
		binary.LittleEndian.Uint64(head[4:12]) == dsdChunkSize
}

// Open parses the DSD, fmt and data chunk headers.
func (r *Reader) Open(src media.Source, _ container.Mode) error {
	r.src = src
	r.id3, r.id3Loaded = nil, false
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}

	var hdr [dsdChunkSize]byte
	if err := media.ReadFull(src, hdr[:]); err != nil {
		return fmt.Errorf("%w: dsf header: %w", container.ErrFormat, err)
	}
	if !Probe(hdr[:]) {
		return fmt.Errorf("%w: missing DSD chunk", container.ErrFormat)
	}
	r.fileSize = binary.LittleEndian.Uint64(hdr[offFileSize:])
	r.id3Offset = binary.LittleEndian.Uint64(hdr[offID3Offset:])

	fmtPos := src.Position()
	var f [fmtChunkSize]byte
	if err := media.ReadFull(src, f[:]); err != nil || string(f[:4]) != "fmt " {
		return fmt.Errorf("%w: missing fmt chunk", container.ErrFormat)
	}
	if id := binary.LittleEndian.Uint32(f[offFmtFormatID:]); id != 0 {
		return fmt.Errorf("%w: unsupported format id %d", container.ErrFormat, id)
	}
	r.version = binary.LittleEndian.Uint32(f[offFmtVersion:])
	r.lsConfig = loudspeakerConfig(binary.LittleEndian.Uint32(f[offFmtChannelType:]))

	channels := binary.LittleEndian.Uint32(f[offFmtChannels:])
	if channels < 1 || channels > maxChannels {
		return fmt.Errorf("%w: %d channels", container.ErrFormat, channels)
	}
	r.channels = int(channels)
	r.sampleRate = int(binary.LittleEndian.Uint32(f[offFmtSampleRate:]))

	switch b := binary.LittleEndian.Uint32(f[offFmtBits:]); b {
	case bitsLSB:
		r.lsb = true
	case bitsMSB:
		r.lsb = false
	default:
		return fmt.Errorf("%w: %d bits per sample", container.ErrFormat, b)
	}
	r.sampleCount = binary.LittleEndian.Uint64(f[offFmtSampleCount:])
	r.blockSize = int(binary.LittleEndian.Uint32(f[offFmtBlockSize:]))
	if r.blockSize <= 0 {
		return fmt.Errorf("%w: zero block size", container.ErrFormat)
	}

	fmtSize := int64(binary.LittleEndian.Uint64(f[4:12]))
	if _, err := src.Seek(fmtPos+fmtSize, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	var data [chunkHeaderSize]byte
	if err := media.ReadFull(src, data[:]); err != nil || string(data[:4]) != "data" {
		return fmt.Errorf("%w: missing data chunk", container.ErrFormat)
	}

	r.block = make([]byte, r.channels*r.blockSize)
	r.dataOffset = src.Position()
	r.resetBlock(0)

	r.log.Debugf("opened: %d ch, %d Hz, block %d, lsb=%v", r.channels, r.sampleRate, r.blockSize, r.lsb)
	return nil
}

func loudspeakerConfig(channelType uint32) int {
	switch channelType {
	case 1:
		return 5
	case 2:
		return 0
	case 3:
		return 6
	case 4:
		return 1
	case 5:
		return 2
	case 6:
		return 3
	case 7:
		return 4
	default:
		return container.LoudspeakerUnknown
	}
}

func (r *Reader) size() uint64 {
	return r.channelBytes() * uint64(r.channels)
}

func (r *Reader) channelBytes() uint64 {
	return r.sampleCount / 8
}

// resetBlock empties the block buffer with the read position at the start
// of block group g.
func (r *Reader) resetBlock(g uint64) {
	r.blockOffset = 0
	r.blockEnd = 0
	r.remain = r.channelBytes() - min(g*uint64(r.blockSize), r.channelBytes())
}

// Close releases the block buffer.
func (r *Reader) Close() error {
	r.block = nil
	return nil
}

// TrackCount returns 1 when the channel count belongs to area.
func (r *Reader) TrackCount(area container.Area) int {
	switch {
	case area == container.AreaBoth,
		area == container.AreaTwoCh && r.channels <= 2,
		area == container.AreaMulCh && r.channels > 2:
		return 1
	default:
		return 0
	}
}

func (r *Reader) SetArea(area container.Area) { r.area = area }
func (r *Reader) Area() container.Area { return r.area }
func (r *Reader) Channels() int { return r.channels }
func (r *Reader) LoudspeakerConfig() int { return r.lsConfig }
func (r *Reader) SampleRate() int { return r.sampleRate }
func (r *Reader) FrameRate() int { return container.FrameRate }
func (r *Reader) IsDST() bool { return false }

// Duration returns the file length in seconds.
func (r *Reader) Duration() float64 {
	if r.sampleRate <= 0 {
		return 0
	}
	return float64(r.sampleCount) / float64(r.sampleRate)
}

// TrackDuration returns the file length for index 0.
func (r *Reader) TrackDuration(index int) float64 {
	if index != 0 {
		return 0
	}
	return r.Duration()
}

// SetTrack rewinds to the first sample. Only track 0 exists.
func (r *Reader) SetTrack(index int, _ container.Area, _ uint32) error {
	if index != 0 {
		return fmt.Errorf("%w: %d", container.ErrNoTrack, index)
	}
	if _, err := r.src.Seek(r.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	r.resetBlock(0)
	return nil
}

// ReadFrame fills buf with byte-interleaved DSD taken from the per-channel
// blocks, reversing bit order for LSB-first files.
func (r *Reader) ReadFrame(buf []byte) (container.Frame, error) {
	samples := 0
	for i := 0; i < len(buf)/r.channels; i++ {
		if r.blockOffset >= r.blockEnd {
			if err := r.fillBlock(); err != nil {
				return container.Frame{}, err
			}
			if r.blockEnd == 0 {
				break
			}
		}
		for ch := range r.channels {
			b := r.block[ch*r.blockSize+r.blockOffset]
			if r.lsb {
				b = bits.Reverse8(b)
			}
			buf[i*r.channels+ch] = b
		}
		r.blockOffset++
		samples++
	}
	if samples == 0 {
		return container.Frame{}, io.EOF
	}
	return container.Frame{Kind: container.FrameDSD, Data: buf[:samples*r.channels]}, nil
}

// fillBlock loads the next block group. Every channel block is padded to
// blockSize, so the whole group is read and only the bytes still owed per
// channel count as valid.
func (r *Reader) fillBlock() error {
	r.blockOffset, r.blockEnd = 0, 0
	if r.remain == 0 {
		return nil
	}
	read, err := io.ReadFull(r.src, r.block)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		r.remain = 0
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Padding missing from the last group.
		container.Silence(r.block[read:])
	default:
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	valid := min(r.remain, uint64(r.blockSize))
	r.remain -= valid
	r.blockEnd = int(valid)
	return nil
}

// Seek moves to a block group boundary proportional to seconds.
func (r *Reader) Seek(seconds float64) error {
	size := r.size()
	var offset uint64
	if d := r.Duration(); d > 0 {
		offset = min(uint64(float64(size)*seconds/d), size)
	}
	group := uint64(r.blockSize * r.channels)
	offset = offset / group * group
	if _, err := r.src.Seek(r.dataOffset+int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	r.resetBlock(offset / group)
	return nil
}

func (r *Reader) loadID3() {
	if r.id3Loaded {
		return
	}
	r.id3Loaded = true
	if r.id3Offset == 0 || r.id3Offset >= r.fileSize {
		return
	}
	pos := r.src.Position()
	defer func() { _, _ = r.src.Seek(pos, io.SeekStart) }()

	if _, err := r.src.Seek(int64(r.id3Offset), io.SeekStart); err != nil {
		r.log.Warnf("seek to id3 tag: %v", err)
		return
	}
	blob := make([]byte, r.fileSize-r.id3Offset)
	n, err := io.ReadFull(r.src, blob)
	if err != nil && n == 0 {
		r.log.Warnf("read id3 tag: %v", err)
		return
	}
	r.id3 = blob[:n]
}

// Tags parses the trailing ID3v2 tag.
func (r *Reader) Tags(index int) container.Tags {
	if index != 0 {
		return container.Tags{}
	}
	r.loadID3()
	t, err := id3tags.Parse(r.id3)
	if err != nil {
		r.log.Debugf("id3: %v", err)
	}
	return t
}

// SetTags replaces the ID3v2 tag. It is written by Commit.
func (r *Reader) SetTags(index int, tags container.Tags) error {
	if index != 0 {
		return fmt.Errorf("%w: %d", container.ErrNoTrack, index)
	}
	r.loadID3()
	blob, err := id3tags.Encode(tags)
	if err != nil {
		return err
	}
	r.id3 = blob
	return nil
}

// Commit rewrites the ID3v2 tail and patches the file size and tag pointer.
func (r *Reader) Commit() error {
	r.loadID3()
	pos := r.src.Position()
	if r.id3Offset == 0 {
		r.id3Offset = r.fileSize
	}
	if err := r.src.Truncate(int64(r.id3Offset)); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	if _, err := r.src.Seek(int64(r.id3Offset), io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	if len(r.id3) > 0 {
		if _, err := r.src.Write(r.id3); err != nil {
			return fmt.Errorf("%w: %w", container.ErrIO, err)
		}
	} else {
		r.id3Offset = 0
	}

	size, err := r.src.Size()
	if err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	r.fileSize = uint64(size)

	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[:8], r.fileSize)
	binary.LittleEndian.PutUint64(hdr[8:], r.id3Offset)
	if _, err := r.src.Seek(offFileSize, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	if _, err := r.src.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	_, err = r.src.Seek(pos, io.SeekStart)
	return err
}

// SetSampleRate rewrites the sampling frequency in the fmt chunk. It reports
// whether the file changed.
func SetSampleRate(src media.Source, rate int) (bool, error) {
	r := New(nil)
	if err := r.Open(src, 0); err != nil {
		return false, err
	}
	if r.sampleRate == rate {
		return false, nil
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(rate))
	if _, err := src.Seek(dsdChunkSize+offFmtSampleRate, io.SeekStart); err != nil {
		return false, fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	if _, err := src.Write(b[:]); err != nil {
		return false, fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	return true, nil
}

var _ container.Reader = (*Reader)(nil)

// Package container defines the contract shared by the SACD container
// readers: disc images, DSDIFF files and DSF files.
package container

import (
	"errors"

	"github.com/tphakala/go-sacd/internal/media"
)

// Stream constants common to all containers.
const (
	// SilenceByte is the DSD idle pattern used for missing or corrupt audio.
	SilenceByte = 0x69

	// SampleRate64 is the base DSD sample rate (64 x 44100 Hz).
	SampleRate64 = 2822400

	// FrameRate is the native SACD frame rate in frames per second.
	FrameRate = 75

	// LoudspeakerUnknown marks a channel layout that has no SACD code.
	LoudspeakerUnknown = 65535
)

var (
	// ErrFormat indicates a bad magic, version or structure.
	ErrFormat = errors.New("container: invalid format")

	// ErrIO indicates the underlying media could not be read or written.
	ErrIO = errors.New("container: media I/O error")

	// ErrNoTrack indicates a track index outside the selected area.
	ErrNoTrack = errors.New("container: no such track")

	// ErrNotSupported indicates the container cannot perform the operation.
	ErrNotSupported = errors.New("container: operation not supported")
)

// Area selects a SACD program area.
type Area int

const (
	// AreaBoth addresses the two-channel and the multichannel area together.
	AreaBoth Area = iota
	// AreaTwoCh is the stereo program area.
	AreaTwoCh
	// AreaMulCh is the multichannel program area.
	AreaMulCh
)

// String returns the area name.
func (a Area) String() string {
	switch a {
	case AreaTwoCh:
		return "2ch"
	case AreaMulCh:
		return "multichannel"
	default:
		return "both"
	}
}

// Mode holds open flags.
type Mode uint32

const (
	// ModeSingleTrack ignores edit-master structures (DSDIFF markers and
	// per-track tags) so the file plays as one track.
	ModeSingleTrack Mode = 1 << iota
	// ModeFullPlayback ignores track stop markers so tracks play through
	// to the next start.
	ModeFullPlayback
)

// Has reports whether all bits of f are set.
func (m Mode) Has(f Mode) bool {
	return m&f == f
}

// FrameKind describes the payload of a frame.
type FrameKind int

const (
	// FrameInvalid marks a frame that could not be read. Data is empty and
	// the consumer substitutes silence.
	FrameInvalid FrameKind = iota
	// FrameDST is a DST compressed frame.
	FrameDST
	// FrameDSD is a plain byte-interleaved DSD frame.
	FrameDSD
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameDST:
		return "DST"
	case FrameDSD:
		return "DSD"
	default:
		return "invalid"
	}
}

// Frame is one 1/75 s quantum of audio. Data aliases the caller's buffer.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Tags is the metadata of one track.
type Tags struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Composer    string
	Performer   string
	Songwriter  string
	Arranger    string
	Genre       string
	Comment     string
	Date        string

	TrackNumber int
	TrackTotal  int
	DiscNumber  int
	DiscTotal   int
}

// IsZero reports whether no field is set.
func (t Tags) IsZero() bool {
	return t == Tags{}
}

// Reader is implemented by every container variant.
type Reader interface {
	// Open parses the container structure from src.
	Open(src media.Source, mode Mode) error
	// Close releases reader state. It does not close the source.
	Close() error

	// TrackCount returns the number of tracks available in area.
	TrackCount(area Area) int
	// SetArea selects the area used by SetTrack and the format queries.
	SetArea(area Area)
	// Area returns the selected area.
	Area() Area

	Channels() int
	LoudspeakerConfig() int
	SampleRate() int
	FrameRate() int
	IsDST() bool

	// Duration returns the length of the current track in seconds.
	Duration() float64
	// TrackDuration returns the length of track index in seconds.
	TrackDuration(index int) float64

	// SetTrack positions the reader at offset sectors into track index.
	SetTrack(index int, area Area, offset uint32) error
	// ReadFrame reads the next frame into buf. It returns io.EOF after the
	// last frame of the track.
	ReadFrame(buf []byte) (Frame, error)
	// Seek moves to seconds from the start of the current track.
	Seek(seconds float64) error

	Tags(index int) Tags
	SetTags(index int, tags Tags) error
	Commit() error
}

// LoudspeakerConfigForChannels returns the default SACD loudspeaker code for a
// bare channel count.
func LoudspeakerConfigForChannels(channels int) int {
	switch channels {
	case 1:
		return 5
	case 2:
		return 0
	case 3:
		return 6
	case 4:
		return 1
	case 5:
		return 3
	case 6:
		return 4
	default:
		return LoudspeakerUnknown
	}
}

// FrameBytes returns the size of one DSD frame for all channels.
func FrameBytes(samplerate, framerate, channels int) int {
	if framerate <= 0 {
		return 0
	}
	return samplerate / 8 / framerate * channels
}

// Silence fills p with the DSD idle pattern.
func Silence(p []byte) {
	for i := range p {
		p[i] = SilenceByte
	}
}

package dsdiff

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/container/id3tags"
	"github.com/tphakala/go-sacd/internal/media"
	"github.com/tphakala/go-sacd/internal/testutil"
)

const monoFrame = container.SampleRate64 / 8 / container.FrameRate

// frameNumbered returns n mono frames whose bytes hold their frame number.
func frameNumbered(n int) []byte {
	b := make([]byte, n*monoFrame)
	for i := range b {
		b[i] = byte(i / monoFrame)
	}
	return b
}

func openImage(t *testing.T, img testutil.DSDIFFImage, mode container.Mode) *Reader {
	t.Helper()
	r := New(nil)
	require.NoError(t, r.Open(media.NewMemory(testutil.BuildDSDIFF(img)), mode))
	return r
}

func countFrames(t *testing.T, r *Reader, bufSize int) (int, []container.Frame) {
	t.Helper()
	buf := make([]byte, bufSize)
	var frames []container.Frame
	for {
		f, err := r.ReadFrame(buf)
		if errors.Is(err, io.EOF) {
			return len(frames), frames
		}
		require.NoError(t, err)
		frames = append(frames, container.Frame{Kind: f.Kind, Data: append([]byte(nil), f.Data...)})
	}
}

func TestPlainDSDStereo(t *testing.T) {
	const frameSize = monoFrame * 2
	r := openImage(t, testutil.DSDIFFImage{
		SampleRate: container.SampleRate64,
		Channels:   2,
		Data:       make([]byte, 3*frameSize),
	}, 0)

	assert.Equal(t, 2, r.Channels())
	assert.Equal(t, 0, r.LoudspeakerConfig())
	assert.False(t, r.IsDST())
	assert.Equal(t, 1, r.TrackCount(container.AreaBoth))
	assert.Equal(t, 1, r.TrackCount(container.AreaTwoCh))
	assert.Equal(t, 0, r.TrackCount(container.AreaMulCh))
	assert.InDelta(t, 3.0/75.0, r.Duration(), 1e-9)

	require.NoError(t, r.SetTrack(0, container.AreaBoth, 0))
	n, frames := countFrames(t, r, frameSize)
	assert.Equal(t, 3, n)
	for _, f := range frames {
		assert.Equal(t, container.FrameDSD, f.Kind)
		assert.Len(t, f.Data, frameSize)
	}
}

func TestTruncatedDSDIsAnIOError(t *testing.T) {
	const frameSize = monoFrame * 2
	data := testutil.BuildDSDIFF(testutil.DSDIFFImage{
		SampleRate: container.SampleRate64,
		Channels:   2,
		Data:       make([]byte, 3*frameSize),
	})
	r := New(nil)
	require.NoError(t, r.Open(media.NewMemory(data[:len(data)-100]), 0))
	require.NoError(t, r.SetTrack(0, container.AreaBoth, 0))

	buf := make([]byte, frameSize)
	for range 2 {
		_, err := r.ReadFrame(buf)
		require.NoError(t, err)
	}
	_, err := r.ReadFrame(buf)
	require.ErrorIs(t, err, container.ErrIO)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestLoudspeakerChunkOverridesChannelCount(t *testing.T) {
	ls := uint16(2)
	r := openImage(t, testutil.DSDIFFImage{
		SampleRate:  container.SampleRate64,
		Channels:    4,
		Loudspeaker: &ls,
		Data:        make([]byte, monoFrame*4),
	}, 0)
	assert.Equal(t, 2, r.LoudspeakerConfig())
	assert.Equal(t, 1, r.TrackCount(container.AreaMulCh))

	r = openImage(t, testutil.DSDIFFImage{
		SampleRate: container.SampleRate64,
		Channels:   3,
		Data:       make([]byte, monoFrame*3),
	}, 0)
	assert.Equal(t, 6, r.LoudspeakerConfig())
}

func markerImage() testutil.DSDIFFImage {
	return testutil.DSDIFFImage{
		SampleRate: container.SampleRate64,
		Channels:   1,
		Data:       frameNumbered(150),
		Markers: []testutil.DSDIFFMarker{
			{Type: testutil.MarkTrackStart},
			{Samples: container.SampleRate64 * 9 / 10, Type: testutil.MarkTrackStop},
			{Seconds: 1, Type: testutil.MarkTrackStart, Text: "two"},
		},
	}
}

func TestMarkersSplitTracks(t *testing.T) {
	r := openImage(t, markerImage(), 0)
	require.Equal(t, 2, r.TrackCount(container.AreaBoth))
	assert.InDelta(t, 0.9, r.TrackDuration(0), 1e-9)
	assert.InDelta(t, 1.0, r.TrackDuration(1), 1e-9)

	require.NoError(t, r.SetTrack(1, container.AreaBoth, 0))
	n, frames := countFrames(t, r, monoFrame)
	assert.Equal(t, 75, n)
	assert.Equal(t, byte(75), frames[0].Data[0])
	assert.Equal(t, byte(149), frames[n-1].Data[0])
}

func TestFullPlaybackIgnoresStopMarkers(t *testing.T) {
	r := openImage(t, markerImage(), container.ModeFullPlayback)
	require.Equal(t, 2, r.TrackCount(container.AreaBoth))
	assert.InDelta(t, 1.0, r.TrackDuration(0), 1e-9)
}

func TestSingleTrackSkipsMarkers(t *testing.T) {
	r := openImage(t, markerImage(), container.ModeSingleTrack)
	require.Equal(t, 1, r.TrackCount(container.AreaBoth))
	assert.InDelta(t, 2.0, r.TrackDuration(0), 1e-9)
}

func dstImage() testutil.DSDIFFImage {
	return testutil.DSDIFFImage{
		SampleRate: container.SampleRate64,
		Channels:   2,
		DSTFrames:  [][]byte{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10, 11, 12, 13}, {14, 15, 16}},
		FrameRate:  container.FrameRate,
		WithIndex:  true,
		WithCRC:    true,
	}
}

func TestDSTFrames(t *testing.T) {
	img := dstImage()
	r := openImage(t, img, 0)
	assert.True(t, r.IsDST())
	assert.Equal(t, container.FrameRate, r.FrameRate())
	assert.InDelta(t, 3.0/75.0, r.Duration(), 1e-9)

	require.NoError(t, r.SetTrack(0, container.AreaBoth, 0))
	n, frames := countFrames(t, r, 1024)
	require.Equal(t, 3, n)
	for i, f := range frames {
		assert.Equal(t, container.FrameDST, f.Kind)
		assert.Equal(t, img.DSTFrames[i], f.Data)
	}
}

func TestDSTSeekUsesIndex(t *testing.T) {
	img := dstImage()
	r := openImage(t, img, 0)
	require.NoError(t, r.SetTrack(0, container.AreaBoth, 0))

	require.NoError(t, r.Seek(1.5/75.0))
	f, err := r.ReadFrame(make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, img.DSTFrames[1], f.Data)
}

func TestDSTResyncsAfterGarbage(t *testing.T) {
	img := dstImage()
	img.WithIndex = false
	raw := testutil.BuildDSDIFF(img)

	r := New(nil)
	require.NoError(t, r.Open(media.NewMemory(raw), 0))
	require.NoError(t, r.SetTrack(0, container.AreaBoth, 0))

	// Corrupt the first DSTF id so the reader has to hunt for the next chunk.
	start := r.currentOffset
	copy(raw[start:], "XXXX")
	n, frames := countFrames(t, r, 1024)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, img.DSTFrames[2], frames[n-1].Data)
}

func TestTagsIndexedByTrackNumber(t *testing.T) {
	first, err := id3tags.Encode(container.Tags{Title: "Second", TrackNumber: 2})
	require.NoError(t, err)
	second, err := id3tags.Encode(container.Tags{Title: "First", TrackNumber: 1})
	require.NoError(t, err)

	img := markerImage()
	img.ID3 = [][]byte{first, second}
	r := openImage(t, img, 0)
	assert.Equal(t, "First", r.Tags(0).Title)
	assert.Equal(t, "Second", r.Tags(1).Title)
	assert.True(t, r.Tags(5).IsZero())
}

func TestPropTagIsFallback(t *testing.T) {
	blob, err := id3tags.Encode(container.Tags{Album: "Prop Album"})
	require.NoError(t, err)
	img := markerImage()
	img.PropID3 = blob
	r := openImage(t, img, 0)
	assert.Equal(t, "Prop Album", r.Tags(0).Album)
}

func TestCommitRewritesTags(t *testing.T) {
	blob, err := id3tags.Encode(container.Tags{Title: "Old", TrackNumber: 1})
	require.NoError(t, err)
	img := markerImage()
	img.ID3 = [][]byte{blob}
	mem := media.NewMemory(testutil.BuildDSDIFF(img))

	r := New(nil)
	require.NoError(t, r.Open(mem, 0))
	require.NoError(t, r.SetTags(0, container.Tags{Title: "New", TrackNumber: 1}))
	require.NoError(t, r.SetTags(1, container.Tags{Title: "Added", TrackNumber: 2}))
	require.NoError(t, r.Commit())

	raw := mem.Bytes()
	assert.Equal(t, uint64(len(raw)-12), binary.BigEndian.Uint64(raw[4:12]))

	again := New(nil)
	require.NoError(t, again.Open(media.NewMemory(raw), 0))
	assert.Equal(t, "New", again.Tags(0).Title)
	assert.Equal(t, "Added", again.Tags(1).Title)

	require.NoError(t, again.SetTags(1, container.Tags{}))
	assert.True(t, again.Tags(1).IsZero())
}

func TestSetSampleRateScalesFrameRate(t *testing.T) {
	mem := media.NewMemory(testutil.BuildDSDIFF(dstImage()))
	changed, err := SetSampleRate(mem, 2*container.SampleRate64)
	require.NoError(t, err)
	assert.True(t, changed)

	r := New(nil)
	require.NoError(t, r.Open(mem, 0))
	assert.Equal(t, 2*container.SampleRate64, r.SampleRate())
	assert.Equal(t, 2*container.FrameRate, r.FrameRate())
}

func TestOpenRejectsOtherForms(t *testing.T) {
	err := New(nil).Open(media.NewMemory([]byte("FRM8\x00\x00\x00\x00\x00\x00\x00\x04AIFF")), 0)
	assert.ErrorIs(t, err, container.ErrFormat)

	err = New(nil).Open(media.NewMemory([]byte("RIFF")), 0)
	assert.ErrorIs(t, err, container.ErrFormat)
}

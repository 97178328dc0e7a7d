package dsf

import (
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/container/id3tags"
	"github.com/tphakala/go-sacd/internal/media"
	"github.com/tphakala/go-sacd/internal/testutil"
)

const (
	testBlockSize = 16
	stereoFrame   = container.SampleRate64 / 8 / container.FrameRate * 2
)

func channelData(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13) ^ seed
	}
	return b
}

func stereoImage(bitsPerSample uint32, framesPerChannel int) testutil.DSFImage {
	n := framesPerChannel * stereoFrame / 2
	return testutil.DSFImage{
		ChannelType:   2,
		SampleRate:    container.SampleRate64,
		BitsPerSample: bitsPerSample,
		BlockSize:     testBlockSize,
		Channels:      [][]byte{channelData(n, 0x00), channelData(n, 0xA5)},
	}
}

func open(t *testing.T, img []byte) *Reader {
	t.Helper()
	r := New(nil)
	require.NoError(t, r.Open(media.NewMemory(img), 0))
	require.NoError(t, r.SetTrack(0, container.AreaBoth, 0))
	return r
}

func TestPartialLastBlockGroup(t *testing.T) {
	// 9408 bytes per channel leave 1216 bytes in the third 4096 byte block.
	const perChannel = 9408
	img := testutil.DSFImage{
		ChannelType:   2,
		SampleRate:    container.SampleRate64,
		BitsPerSample: 8,
		BlockSize:     4096,
		Channels:      [][]byte{channelData(perChannel, 0x00), channelData(perChannel, 0xA5)},
	}
	r := open(t, testutil.BuildDSF(img))

	var got [2][]byte
	buf := make([]byte, stereoFrame)
	for {
		f, err := r.ReadFrame(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		for i := 0; i+1 < len(f.Data); i += 2 {
			got[0] = append(got[0], f.Data[i])
			got[1] = append(got[1], f.Data[i+1])
		}
	}
	assert.Equal(t, img.Channels[0], got[0])
	assert.Equal(t, img.Channels[1], got[1])
}

func TestOpenStereoLSB(t *testing.T) {
	img := stereoImage(1, 2)
	r := open(t, testutil.BuildDSF(img))

	assert.Equal(t, 2, r.Channels())
	assert.Equal(t, 0, r.LoudspeakerConfig())
	assert.Equal(t, container.SampleRate64, r.SampleRate())
	assert.Equal(t, container.FrameRate, r.FrameRate())
	assert.False(t, r.IsDST())
	assert.InDelta(t, 2.0/75.0, r.Duration(), 1e-9)

	buf := make([]byte, stereoFrame)
	for frame := range 2 {
		f, err := r.ReadFrame(buf)
		require.NoError(t, err)
		require.Equal(t, container.FrameDSD, f.Kind)
		require.Len(t, f.Data, stereoFrame)
		base := frame * stereoFrame / 2
		for i := 0; i < stereoFrame/2; i++ {
			for ch := range 2 {
				want := bits.Reverse8(img.Channels[ch][base+i])
				if !assert.Equal(t, want, f.Data[i*2+ch], "frame %d sample %d ch %d", frame, i, ch) {
					return
				}
			}
		}
	}

	_, err := r.ReadFrame(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestMSBIsNotReversed(t *testing.T) {
	img := stereoImage(8, 1)
	r := open(t, testutil.BuildDSF(img))

	buf := make([]byte, stereoFrame)
	f, err := r.ReadFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, img.Channels[0][0], f.Data[0])
	assert.Equal(t, img.Channels[1][0], f.Data[1])
	assert.Equal(t, img.Channels[1][17], f.Data[35])
}

func TestTrackCountByChannels(t *testing.T) {
	r := open(t, testutil.BuildDSF(stereoImage(1, 1)))
	assert.Equal(t, 1, r.TrackCount(container.AreaBoth))
	assert.Equal(t, 1, r.TrackCount(container.AreaTwoCh))
	assert.Equal(t, 0, r.TrackCount(container.AreaMulCh))
	assert.InDelta(t, 0, r.TrackDuration(1), 0)
	assert.ErrorIs(t, r.SetTrack(1, container.AreaBoth, 0), container.ErrNoTrack)
}

func TestLoudspeakerConfigFromChannelType(t *testing.T) {
	want := map[uint32]int{1: 5, 2: 0, 3: 6, 4: 1, 5: 2, 6: 3, 7: 4, 9: container.LoudspeakerUnknown}
	for channelType, ls := range want {
		assert.Equal(t, ls, loudspeakerConfig(channelType), "channel type %d", channelType)
	}
}

func TestOpenRejectsBadHeaders(t *testing.T) {
	patch := func(off int, v uint32) []byte {
		b := testutil.BuildDSF(stereoImage(1, 1))
		binary.LittleEndian.PutUint32(b[off:], v)
		return b
	}

	tests := []struct {
		name string
		img  []byte
	}{
		{"not dsf", []byte("RIFF....WAVEfmt ")},
		{"format id", patch(dsdChunkSize+offFmtFormatID, 1)},
		{"zero channels", patch(dsdChunkSize+offFmtChannels, 0)},
		{"seven channels", patch(dsdChunkSize+offFmtChannels, 7)},
		{"bits per sample", patch(dsdChunkSize+offFmtBits, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(nil).Open(media.NewMemory(tt.img), 0)
			assert.True(t, errors.Is(err, container.ErrFormat), "got %v", err)
		})
	}
}

func TestSeekAlignsToBlockGroup(t *testing.T) {
	img := stereoImage(8, 4)
	r := open(t, testutil.BuildDSF(img))

	require.NoError(t, r.Seek(r.Duration()/2))
	rel := r.src.Position() - r.dataOffset
	group := int64(testBlockSize * 2)
	assert.Zero(t, rel%group)
	assert.InDelta(t, int64(r.size()/2), rel, float64(group))

	buf := make([]byte, stereoFrame)
	f, err := r.ReadFrame(buf)
	require.NoError(t, err)
	sample := int(rel / group * testBlockSize)
	assert.Equal(t, img.Channels[0][sample], f.Data[0])
	assert.Equal(t, img.Channels[1][sample], f.Data[1])
}

func TestTagsAndCommit(t *testing.T) {
	blob, err := id3tags.Encode(container.Tags{Title: "Blue in Green", TrackNumber: 3})
	require.NoError(t, err)
	img := stereoImage(1, 1)
	img.ID3 = blob

	mem := media.NewMemory(testutil.BuildDSF(img))
	r := New(nil)
	require.NoError(t, r.Open(mem, 0))
	assert.Equal(t, "Blue in Green", r.Tags(0).Title)
	assert.Equal(t, 3, r.Tags(0).TrackNumber)
	assert.True(t, r.Tags(1).IsZero())

	require.NoError(t, r.SetTags(0, container.Tags{Title: "Flamenco Sketches", Artist: "Miles Davis"}))
	require.NoError(t, r.Commit())

	raw := mem.Bytes()
	assert.Equal(t, uint64(len(raw)), binary.LittleEndian.Uint64(raw[offFileSize:]))

	again := New(nil)
	require.NoError(t, again.Open(media.NewMemory(raw), 0))
	tags := again.Tags(0)
	assert.Equal(t, "Flamenco Sketches", tags.Title)
	assert.Equal(t, "Miles Davis", tags.Artist)
}

func TestCommitAddsTagToUntaggedFile(t *testing.T) {
	mem := media.NewMemory(testutil.BuildDSF(stereoImage(1, 1)))
	r := New(nil)
	require.NoError(t, r.Open(mem, 0))
	assert.True(t, r.Tags(0).IsZero())

	require.NoError(t, r.SetTags(0, container.Tags{Album: "Kind of Blue"}))
	require.NoError(t, r.Commit())

	again := New(nil)
	require.NoError(t, again.Open(media.NewMemory(mem.Bytes()), 0))
	assert.Equal(t, "Kind of Blue", again.Tags(0).Album)
}

func TestSetSampleRate(t *testing.T) {
	mem := media.NewMemory(testutil.BuildDSF(stereoImage(1, 1)))
	changed, err := SetSampleRate(mem, 2*container.SampleRate64)
	require.NoError(t, err)
	assert.True(t, changed)

	r := New(nil)
	require.NoError(t, r.Open(mem, 0))
	assert.Equal(t, 2*container.SampleRate64, r.SampleRate())

	changed, err = SetSampleRate(mem, 2*container.SampleRate64)
	require.NoError(t, err)
	assert.False(t, changed)
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sacd "github.com/tphakala/go-sacd"
	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/testutil"
)

const channelFrame = container.SampleRate64 / 8 / container.FrameRate

func writeDSF(t *testing.T, frames int) string {
	t.Helper()
	data := testutil.BuildDSF(testutil.DSFImage{
		ChannelType:   2,
		SampleRate:    container.SampleRate64,
		BitsPerSample: 8,
		BlockSize:     channelFrame,
		Channels: [][]byte{
			bytes.Repeat([]byte{0x69}, frames*channelFrame),
			bytes.Repeat([]byte{0x69}, frames*channelFrame),
		},
	})
	path := filepath.Join(t.TempDir(), "test.dsf")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testConfig() sacd.Config {
	cfg := sacd.DefaultConfig()
	cfg.LoggerFactory = logutil.Discard()
	return cfg
}

func TestDescribe(t *testing.T) {
	path := writeDSF(t, container.FrameRate*2)

	var out bytes.Buffer
	require.NoError(t, describe(&out, path, testConfig(), false))

	s := out.String()
	assert.Contains(t, s, "Container: dsf")
	assert.Contains(t, s, "Tracks:    1")
	assert.Contains(t, s, "DSD64")
	assert.Contains(t, s, "FL|FR")
	assert.Contains(t, s, "0:02")
}

func TestApplyTags(t *testing.T) {
	path := writeDSF(t, 1)
	cfg := testConfig()

	require.NoError(t, applyTags(path, cfg, 1, []string{"title=Intro", "Artist=Band", "track=1"}))

	var out bytes.Buffer
	require.NoError(t, describe(&out, path, cfg, true))
	s := out.String()
	assert.Contains(t, s, "Intro")
	assert.Contains(t, s, "artist:      Band")
	assert.Contains(t, s, "track:       1")
}

func TestApplyTagsErrors(t *testing.T) {
	path := writeDSF(t, 1)
	cfg := testConfig()

	err := applyTags(path, cfg, 2, []string{"title=x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	err = applyTags(path, cfg, 1, []string{"mood=calm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tag field")

	err = applyTags(path, cfg, 1, []string{"disc=two"})
	require.Error(t, err)
}

func TestSetTag(t *testing.T) {
	var tags sacd.Tags
	require.NoError(t, setTag(&tags, "Composer", "Bach"))
	require.NoError(t, setTag(&tags, "disctotal", "2"))
	assert.Equal(t, "Bach", tags.Composer)
	assert.Equal(t, 2, tags.DiscTotal)

	require.NoError(t, setTag(&tags, "disctotal", ""))
	assert.Zero(t, tags.DiscTotal)
	require.Error(t, setTag(&tags, "track", "-1"))
}

func TestSetFlags(t *testing.T) {
	var s setFlags
	require.NoError(t, s.Set("title=A=B"))
	require.Error(t, s.Set("title"))
	assert.Equal(t, "title=A=B", s.String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", formatDuration(0))
	assert.Equal(t, "1:05", formatDuration(64.6))
	assert.Equal(t, "61:00", formatDuration(3660))
}

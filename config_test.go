package sacd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/pipeline"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, OutputPCM, cfg.Output)
	assert.Equal(t, Rate44k1, cfg.PCMRate)
	assert.Equal(t, ConverterMultistageFP32, cfg.Converter)
	assert.Equal(t, AreaBoth, cfg.Area)
	assert.NotNil(t, cfg.LoggerFactory)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"rate 88.2k", func(c *Config) { c.PCMRate = Rate88k2 }, false},
		{"rate 352.8k", func(c *Config) { c.PCMRate = Rate352k8 }, false},
		{"rate 48k", func(c *Config) { c.PCMRate = 48000 }, true},
		{"rate zero", func(c *Config) { c.PCMRate = 0 }, true},
		{"dsd output", func(c *Config) { c.Output = OutputDSD }, false},
		{"bad output", func(c *Config) { c.Output = 7 }, true},
		{"user fp64", func(c *Config) { c.Converter = ConverterUserFP64 }, false},
		{"bad converter", func(c *Config) { c.Converter = -1 }, true},
		{"multichannel", func(c *Config) { c.Area = AreaMultichannel }, false},
		{"bad area", func(c *Config) { c.Area = 3 }, true},
		{"gain limit", func(c *Config) { c.GainDB = -60 }, false},
		{"gain too high", func(c *Config) { c.GainDB = 60.5 }, true},
		{"gain NaN", func(c *Config) { c.GainDB = math.NaN() }, true},
		{"slots max", func(c *Config) { c.DSTSlots = 64 }, false},
		{"slots negative", func(c *Config) { c.DSTSlots = -1 }, true},
		{"slots too many", func(c *Config) { c.DSTSlots = 65 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigOpenMode(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, container.Mode(0), cfg.openMode())

	cfg.SingleTrack = true
	assert.Equal(t, container.ModeSingleTrack, cfg.openMode())

	cfg.EditMaster = true
	assert.Equal(t, container.ModeSingleTrack|container.ModeFullPlayback, cfg.openMode())
}

func TestConverterMode(t *testing.T) {
	tests := []struct {
		mode     ConverterMode
		name     string
		fp64     bool
		pipeline pipeline.Mode
	}{
		{ConverterMultistageFP32, "multistage-fp32", false, pipeline.ModeMultistage},
		{ConverterMultistageFP64, "multistage-fp64", true, pipeline.ModeMultistage},
		{ConverterDirectFP32, "direct-fp32", false, pipeline.ModeDirect},
		{ConverterDirectFP64, "direct-fp64", true, pipeline.ModeDirect},
		{ConverterUserFP32, "user-fp32", false, pipeline.ModeUser},
		{ConverterUserFP64, "user-fp64", true, pipeline.ModeUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.mode.String())
			assert.Equal(t, tt.fp64, tt.mode.FP64())
			assert.Equal(t, tt.pipeline, tt.mode.pipelineMode())

			parsed, err := ParseConverterMode(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, parsed)
		})
	}

	assert.Equal(t, "ConverterMode(9)", ConverterMode(9).String())
}

func TestParseConverterMode(t *testing.T) {
	m, err := ParseConverterMode(" Direct ")
	require.NoError(t, err)
	assert.Equal(t, ConverterDirectFP32, m)

	m, err = ParseConverterMode("USER-FP64")
	require.NoError(t, err)
	assert.Equal(t, ConverterUserFP64, m)

	_, err = ParseConverterMode("polyphase")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), `"polyphase"`)
}

func TestAreaSelect(t *testing.T) {
	tests := []struct {
		in   string
		want AreaSelect
	}{
		{"both", AreaBoth},
		{"", AreaBoth},
		{"2ch", AreaTwoChannel},
		{"Stereo", AreaTwoChannel},
		{"multichannel", AreaMultichannel},
		{"MCH", AreaMultichannel},
	}
	for _, tt := range tests {
		got, err := ParseAreaSelect(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseAreaSelect("surround")
	require.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, "both", AreaBoth.String())
	assert.Equal(t, "2ch", AreaTwoChannel.String())
	assert.Equal(t, "multichannel", AreaMultichannel.String())
	assert.Equal(t, "AreaSelect(5)", AreaSelect(5).String())
}

func TestOutputModeString(t *testing.T) {
	assert.Equal(t, "pcm", OutputPCM.String())
	assert.Equal(t, "dsd", OutputDSD.String())
	assert.Equal(t, "OutputMode(2)", OutputMode(2).String())
}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/pipeline"
)

func TestAnalyze(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, analyze(&out, pipeline.ModeMultistage, 64))

	s := out.String()
	assert.Contains(t, s, "/64 (DSD64 -> 44100 Hz)")
	assert.Contains(t, s, "Total latency")
	assert.Equal(t, 3, strings.Count(s, " taps "))
}

func TestAnalyzeUnsupportedRatio(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, analyze(&out, pipeline.ModeDirect, 48))
}

func TestMeasureStage(t *testing.T) {
	p, err := pipeline.BuildPipeline(64, pipeline.ModeMultistage, 0)
	require.NoError(t, err)

	for _, s := range p.GetStages() {
		rep, err := measureStage(s)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, rep.dcGain, 1e-9, rep.name)
		assert.GreaterOrEqual(t, rep.rippleDB, 0.0, rep.name)
		assert.Positive(t, rep.stopbandDB, rep.name)
	}
}

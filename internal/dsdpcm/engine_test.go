package dsdpcm

import (
	"bytes"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/pipeline"
	"github.com/tphakala/go-sacd/internal/testutil"
)

const (
	dsd64     = 2822400
	frameRate = 75
	frameLen  = dsd64 / 8 / frameRate // bytes per channel
)

func newEngine(t *testing.T, p InitParams) *Engine {
	t.Helper()
	e := New(logutil.Discard())
	res, err := e.Init(p)
	require.NoError(t, err)
	require.Equal(t, InitDone, res)
	t.Cleanup(e.Close)
	return e
}

func stereo(pcmRate int, mode pipeline.Mode, fp64 bool) InitParams {
	return InitParams{Channels: 2, FrameRate: frameRate, DSDRate: dsd64, PCMRate: pcmRate, Mode: mode, FP64: fp64}
}

// interleave builds one frame whose channel c repeats fill[c].
func interleave(n int, fill ...byte) []byte {
	out := make([]byte, n*len(fill))
	for i := range out {
		out[i] = fill[i%len(fill)]
	}
	return out
}

func channel(pcm []float64, ch, c, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pcm[i*ch+c]
	}
	return out
}

func TestEngine_IdleIsSilent(t *testing.T) {
	for _, mode := range []pipeline.Mode{ModeMultistage, ModeDirect} {
		for _, fp64 := range []bool{false, true} {
			e := newEngine(t, stereo(44100, mode, fp64))

			frame := interleave(frameLen, 0x69, 0x69)
			pcm := make([]float64, e.OutputSize(len(frame)))
			for i := range 4 {
				n := e.Convert(frame, pcm)
				require.Equal(t, 588, n)
				if i == 0 {
					continue
				}
				testutil.AssertAllInRange(t, pcm[:2*n], -1e-3, 1e-3)
			}
		}
	}
}

func TestEngine_DCLevelAndPriming(t *testing.T) {
	e := newEngine(t, stereo(88200, ModeMultistage, true))

	frame := interleave(frameLen, 0xff, 0x00)
	pcm := make([]float64, e.OutputSize(len(frame)))
	n := e.Convert(frame, pcm)
	require.Equal(t, 1176, n)

	// Primed with the reversed frame, the very first samples are settled.
	for i := range n {
		assert.InDelta(t, 1.0, pcm[2*i], 1e-6, "left sample %d", i)
		assert.InDelta(t, -1.0, pcm[2*i+1], 1e-6, "right sample %d", i)
	}
}

func TestEngine_Gain(t *testing.T) {
	p := stereo(44100, ModeDirect, false)
	p.GainDB = -6.0206
	e := newEngine(t, p)

	frame := interleave(frameLen, 0xff, 0xff)
	pcm := make([]float64, e.OutputSize(len(frame)))
	n := e.Convert(frame, pcm)
	require.Equal(t, 588, n)
	testutil.AssertAllInRange(t, pcm[:2*n], 0.4999, 0.5001)
}

func TestEngine_MultichannelInterleave(t *testing.T) {
	e := newEngine(t, InitParams{Channels: 3, FrameRate: frameRate, DSDRate: dsd64, PCMRate: 176400, FP64: true})

	frame := interleave(frameLen, 0xff, 0x00, 0x69)
	pcm := make([]float64, e.OutputSize(len(frame)))
	e.Convert(frame, pcm)
	n := e.Convert(frame, pcm)
	require.Equal(t, 2352, n)

	testutil.AssertAllInRange(t, channel(pcm, 3, 0, n), 1-1e-6, 1+1e-6)
	testutil.AssertAllInRange(t, channel(pcm, 3, 1, n), -1-1e-6, -1+1e-6)
	testutil.AssertAllInRange(t, channel(pcm, 3, 2, n), -1e-3, 1e-3)
}

func TestEngine_UserFilterBitOrder(t *testing.T) {
	// Eight taps with only the oldest bit of each byte weighted: the MSB.
	user := []float64{0, 0, 0, 0, 0, 0, 0, 1}
	e := newEngine(t, InitParams{
		Channels: 1, FrameRate: frameRate, DSDRate: dsd64, PCMRate: dsd64 / 8,
		Mode: ModeUser, FP64: true, UserFIR: user,
	})
	assert.InDelta(t, 7.0/2/8, e.Delay(), 1e-12)

	in := []byte{0x80, 0x7f, 0x01, 0xfe, 0x00}
	pcm := make([]float64, e.OutputSize(len(in)))
	n := e.Convert(in, pcm)
	require.Equal(t, len(in), n)
	assert.Equal(t, []float64{1, -1, -1, 1, -1}, pcm[:n])
}

func TestEngine_Flush(t *testing.T) {
	e := newEngine(t, stereo(44100, ModeMultistage, true))

	pcm := make([]float64, 2*(frameLen+slack))
	assert.Zero(t, e.Convert(nil, pcm), "nothing to flush before the first frame")

	frame := interleave(frameLen, 0xff, 0x00)
	require.Equal(t, 588, e.Convert(frame, pcm))

	n := e.Convert(nil, pcm)
	require.Equal(t, 588, n)
	testutil.AssertAllInRange(t, channel(pcm, 2, 0, n), 1-1e-6, 1+1e-6)
	testutil.AssertAllInRange(t, channel(pcm, 2, 1, n), -1-1e-6, -1+1e-6)
}

func TestEngine_PrecisionsAgree(t *testing.T) {
	frame := make([]byte, 2*frameLen)
	x := uint32(1)
	for i := range frame {
		x = x*1664525 + 1013904223
		frame[i] = byte(x >> 24)
	}

	convert := func(fp64 bool) []float64 {
		e := newEngine(t, stereo(44100, ModeMultistage, fp64))
		pcm := make([]float64, e.OutputSize(len(frame)))
		n := e.Convert(frame, pcm)
		return pcm[:2*n]
	}
	single, double := convert(false), convert(true)
	require.Len(t, single, len(double))
	for i := range double {
		assert.InDelta(t, double[i], single[i], 1e-4, "sample %d", i)
	}
}

func TestEngine_Delay(t *testing.T) {
	for _, mode := range []pipeline.Mode{ModeMultistage, ModeDirect} {
		for _, rate := range []int{44100, 88200, 176400, 352800} {
			e := newEngine(t, stereo(rate, mode, false))

			plan, err := pipeline.BuildPipeline(dsd64/rate, mode, 0)
			require.NoError(t, err)
			assert.InDelta(t, plan.GetTotalLatency(), e.Delay(), 1e-12)
			assert.Positive(t, e.Delay())
		}
	}
	assert.Zero(t, New(nil).Delay())
}

func TestEngine_InitSkip(t *testing.T) {
	p := stereo(44100, ModeMultistage, false)
	e := newEngine(t, p)

	frame := interleave(frameLen, 0x69, 0x69)
	pcm := make([]float64, e.OutputSize(len(frame)))
	e.Convert(frame, pcm)

	slot, delay := e.slots[0], e.Delay()

	p.SkipIfUnchanged = true
	res, err := e.Init(p)
	require.NoError(t, err)
	assert.Equal(t, InitSkipped, res)
	assert.Same(t, slot, e.slots[0])
	assert.True(t, e.convertCalled)
	assert.InDelta(t, delay, e.Delay(), 0)

	// The skip check ignores mode and precision.
	p.Mode, p.FP64 = ModeDirect, true
	res, err = e.Init(p)
	require.NoError(t, err)
	assert.Equal(t, InitSkipped, res)

	p.PCMRate = 88200
	res, err = e.Init(p)
	require.NoError(t, err)
	assert.Equal(t, InitDone, res)
	assert.NotSame(t, slot, e.slots[0])
	assert.False(t, e.convertCalled)

	p.SkipIfUnchanged = false
	res, err = e.Init(p)
	require.NoError(t, err)
	assert.Equal(t, InitDone, res, "without skip the cascades are rebuilt")
}

func TestEngine_InitErrors(t *testing.T) {
	e := New(nil)
	defer e.Close()

	p := stereo(44100, ModeUser, false)
	_, err := e.Init(p)
	assert.ErrorIs(t, err, ErrNoUserFIR)

	p = stereo(48000, ModeMultistage, false)
	_, err = e.Init(p)
	assert.ErrorIs(t, err, ErrUnsupportedRatio)

	p = stereo(dsd64/4, ModeMultistage, false)
	_, err = e.Init(p)
	assert.ErrorIs(t, err, ErrUnsupportedRatio)

	p = stereo(44100, ModeMultistage, false)
	p.Channels = 0
	_, err = e.Init(p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	assert.Zero(t, e.Convert([]byte{0x69, 0x69}, make([]float64, 16)), "not initialised")
}

func TestEngine_CloseIdempotent(t *testing.T) {
	var logs bytes.Buffer
	e := New(&logging.DefaultLoggerFactory{Writer: &logs, DefaultLogLevel: logging.LogLevelError})
	_, err := e.Init(stereo(44100, ModeMultistage, false))
	require.NoError(t, err)

	e.Close()
	e.Close()
	assert.Zero(t, e.Convert(interleave(frameLen, 0x69, 0x69), make([]float64, 2*(frameLen+slack))))
	assert.Empty(t, logs.String())

	res, err := e.Init(InitParams{Channels: 2, FrameRate: frameRate, DSDRate: dsd64, PCMRate: 44100, SkipIfUnchanged: true})
	require.NoError(t, err)
	assert.Equal(t, InitDone, res, "a closed engine is never skipped")
	e.Close()
}

func TestReverseInPlace(t *testing.T) {
	p := []byte{0x01, 0x02, 0x80}
	reverseInPlace(p)
	assert.Equal(t, []byte{0x01, 0x40, 0x80}, p)

	p = []byte{0x0f, 0x03}
	reverseInPlace(p)
	assert.Equal(t, []byte{0xc0, 0xf0}, p)

	reverseInPlace(nil)
}

func TestByteTables(t *testing.T) {
	tables := byteTables[float64]([]float64{0.5}, 2)
	require.Len(t, tables, 1)
	assert.InDelta(t, 1.0, tables[0][0x01], 0)
	assert.InDelta(t, -1.0, tables[0][0xfe], 0)

	// Nine taps span two bytes; padding sits at the oldest end.
	tables = byteTables[float64]([]float64{1, 0, 0, 0, 0, 0, 0, 0, 0.25}, 1)
	require.Len(t, tables, 2)
	assert.InDelta(t, 0.25, tables[0][0x01], 0)
	assert.InDelta(t, -0.25, tables[0][0xfe], 0)
	assert.InDelta(t, 1.0, tables[1][0x01], 0)
}

type stuckConverter struct {
	release chan struct{}
}

func (c stuckConverter) convert([]byte, []float64) int {
	<-c.release
	return 0
}

func TestEngine_CloseAbandonsStuckWorker(t *testing.T) {
	var logs bytes.Buffer
	e := New(&logging.DefaultLoggerFactory{Writer: &logs, DefaultLogLevel: logging.LogLevelError})
	_, err := e.Init(stereo(44100, ModeMultistage, false))
	require.NoError(t, err)

	stuck := stuckConverter{release: make(chan struct{})}
	defer close(stuck.release)
	e.slots[1].conv = stuck
	e.slots[1].run <- struct{}{}
	require.Eventually(t, e.slots[1].busy.Load, time.Second, time.Millisecond)

	e.Close()
	assert.Contains(t, logs.String(), "could not stop DSD to PCM converter for channel 1")
	assert.NotContains(t, logs.String(), "channel 0")

	// A fresh generation runs while the abandoned worker is still stuck.
	_, err = e.Init(stereo(44100, ModeMultistage, false))
	require.NoError(t, err)
	defer e.Close()
	frame := interleave(frameLen, 0x69, 0x69)
	pcm := make([]float64, e.OutputSize(len(frame)))
	assert.Equal(t, 588, e.Convert(frame, pcm))
}

// Package dsdpcm converts DSD to PCM with cascaded decimating FIR filters.
//
// Every channel owns a cascade and a worker goroutine. A Convert call splits
// the interleaved DSD frame per channel, runs all channels in parallel and
// interleaves the PCM result. The first stage filters the 1-bit stream through
// per-byte lookup tables; the remaining stages halve the rate on PCM samples.
package dsdpcm

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/mathutil"
	"github.com/tphakala/go-sacd/internal/pipeline"
	"github.com/tphakala/go-sacd/internal/simdops"
)

const closeTimeout = 100 * time.Millisecond

// Converter modes.
const (
	ModeMultistage = pipeline.ModeMultistage
	ModeDirect     = pipeline.ModeDirect
	ModeUser       = pipeline.ModeUser
)

var (
	// ErrUnsupportedRatio indicates no cascade exists for the DSD/PCM rate ratio.
	ErrUnsupportedRatio = pipeline.ErrUnsupportedRatio

	// ErrNoUserFIR indicates user mode was selected without coefficients.
	ErrNoUserFIR = errors.New("dsdpcm: user mode without filter coefficients")

	// ErrInvalidParams indicates a channel count or rate out of range.
	ErrInvalidParams = errors.New("dsdpcm: invalid parameters")
)

// InitParams describes the stream an Engine converts.
type InitParams struct {
	Channels  int
	FrameRate int
	DSDRate   int
	PCMRate   int

	Mode    pipeline.Mode
	FP64    bool
	UserFIR []float64

	// GainDB is applied in the DSD stage.
	GainDB float64

	// SkipIfUnchanged keeps the running cascades when channels and rates
	// match the previous Init.
	SkipIfUnchanged bool
}

// InitResult tells whether Init rebuilt the cascades.
type InitResult int

const (
	InitDone InitResult = iota
	InitSkipped
)

type channelSlot struct {
	id   int
	conv converter
	busy atomic.Bool

	dsd []byte
	pcm []float64
	n   int

	run  chan struct{}
	done chan struct{}
}

// Engine converts interleaved DSD frames to interleaved PCM. It is driven
// from one goroutine.
type Engine struct {
	log logging.LeveledLogger

	params InitParams
	plan   *pipeline.Pipeline
	slots  []*channelSlot

	convertCalled bool

	// Workers never read quit or g.
	quit chan struct{}
	g    *errgroup.Group
}

// New returns an engine that must be initialised before use.
func New(f logging.LoggerFactory) *Engine {
	return &Engine{log: logutil.Scoped(f, "dsdpcm")}
}

// Init builds a cascade per channel for the given stream. With
// SkipIfUnchanged and the same channel count, frame rate and rates as the
// running setup it returns InitSkipped and leaves all filter state alone.
func (e *Engine) Init(p InitParams) (InitResult, error) {
	if p.SkipIfUnchanged && e.quit != nil && e.sameStream(p) {
		return InitSkipped, nil
	}
	if p.Channels <= 0 || p.FrameRate <= 0 || p.DSDRate <= 0 || p.PCMRate <= 0 {
		return InitDone, fmt.Errorf("%w: %d channels, %d frames/s, %d Hz to %d Hz",
			ErrInvalidParams, p.Channels, p.FrameRate, p.DSDRate, p.PCMRate)
	}
	if p.DSDRate%p.PCMRate != 0 {
		return InitDone, fmt.Errorf("%w: %d Hz to %d Hz", ErrUnsupportedRatio, p.DSDRate, p.PCMRate)
	}
	if p.Mode == ModeUser && len(p.UserFIR) == 0 {
		return InitDone, ErrNoUserFIR
	}

	plan, err := pipeline.BuildPipeline(p.DSDRate/p.PCMRate, p.Mode, len(p.UserFIR))
	if err != nil {
		return InitDone, err
	}

	dsdCoeffs := p.UserFIR
	if p.Mode != ModeUser {
		if dsdCoeffs, err = plan.DSDStage().Filter.Coefficients(); err != nil {
			return InitDone, err
		}
	}
	pcmCoeffs := make([][]float64, 0, len(plan.PCMStages()))
	for _, s := range plan.PCMStages() {
		c, err := s.Filter.Coefficients()
		if err != nil {
			return InitDone, err
		}
		pcmCoeffs = append(pcmCoeffs, c)
	}
	gain := mathutil.DBToGain(p.GainDB)

	var newConverter func() converter
	if p.FP64 {
		d := newDesign[float64](plan, dsdCoeffs, gain, pcmCoeffs)
		newConverter = func() converter { return d.newCascade() }
	} else {
		d := newDesign[float32](plan, dsdCoeffs, gain, pcmCoeffs)
		newConverter = func() converter { return d.newCascade() }
	}

	e.Close()

	e.params = p
	e.plan = plan
	e.convertCalled = false
	e.slots = make([]*channelSlot, p.Channels)
	for ch := range e.slots {
		e.slots[ch] = &channelSlot{
			id:   ch,
			conv: newConverter(),
			run:  make(chan struct{}, 1),
			done: make(chan struct{}, 1),
		}
	}

	quit := make(chan struct{})
	e.quit = quit
	e.g = new(errgroup.Group)
	for _, s := range e.slots {
		e.g.Go(func() error {
			work(s, quit)
			return nil
		})
	}

	e.log.Debugf("%d channels, %d Hz to %d Hz, %s cascade with %d stages, delay %.2f samples",
		p.Channels, p.DSDRate, p.PCMRate, plan.Mode(), len(plan.GetStages()), plan.GetTotalLatency())
	return InitDone, nil
}

func (e *Engine) sameStream(p InitParams) bool {
	return p.Channels == e.params.Channels && p.FrameRate == e.params.FrameRate &&
		p.DSDRate == e.params.DSDRate && p.PCMRate == e.params.PCMRate
}

// work runs one channel until quit is closed. quit is captured per Init so a
// worker abandoned by Close never sees a later generation.
func work(s *channelSlot, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-s.run:
		}
		s.busy.Store(true)
		s.n = s.conv.convert(s.dsd, s.pcm)
		s.busy.Store(false)
		s.done <- struct{}{}
	}
}

// Delay returns the cascade group delay in output samples.
func (e *Engine) Delay() float64 {
	if e.plan == nil {
		return 0
	}
	return e.plan.GetTotalLatency()
}

// Channels returns the channel count of the running setup.
func (e *Engine) Channels() int { return len(e.slots) }

// PCMRate returns the output sample rate of the running setup.
func (e *Engine) PCMRate() int { return e.params.PCMRate }

// ConvertCalled reports whether a frame has gone through the cascades since
// they were built.
func (e *Engine) ConvertCalled() bool { return e.convertCalled }

// OutputSize returns the interleaved PCM buffer size Convert needs for
// n bytes of interleaved DSD.
func (e *Engine) OutputSize(n int) int {
	ch := len(e.slots)
	if ch == 0 {
		return 0
	}
	return (n/ch + slack) * ch
}

// Room for the partial decimation phases carried between calls.
const slack = 8

// Convert converts one interleaved DSD frame and writes interleaved PCM to
// pcm, which must hold OutputSize(len(dsd)) samples. It returns the number
// of samples per channel written.
//
// Before the first frame every channel is primed with that frame played
// backwards, so the output starts from a settled filter state instead of
// silence. A nil dsd flushes: the last frame is played backwards through
// the cascades, completing the tail of the real signal.
func (e *Engine) Convert(dsd []byte, pcm []float64) int {
	if e.quit == nil {
		return 0
	}
	if dsd == nil {
		for _, s := range e.slots {
			reverseInPlace(s.dsd)
		}
		return e.run(pcm)
	}

	ch := len(e.slots)
	frame := len(dsd) / ch
	for c, s := range e.slots {
		if cap(s.dsd) < frame {
			s.dsd = make([]byte, frame)
		}
		s.dsd = s.dsd[:frame]
		if need := frame + slack; len(s.pcm) < need {
			s.pcm = make([]float64, need)
		}
		if !e.convertCalled {
			for i := range frame {
				s.dsd[i] = bits.Reverse8(dsd[(frame-1-i)*ch+c])
			}
		}
	}
	if !e.convertCalled {
		e.dispatch()
		e.convertCalled = true
	}

	for c, s := range e.slots {
		for i := range frame {
			s.dsd[i] = dsd[i*ch+c]
		}
	}
	return e.run(pcm)
}

func (e *Engine) dispatch() {
	for _, s := range e.slots {
		s.run <- struct{}{}
	}
	for _, s := range e.slots {
		<-s.done
	}
}

func (e *Engine) run(pcm []float64) int {
	e.dispatch()

	ch := len(e.slots)
	n := min(e.slots[0].n, len(pcm)/ch)
	if ch == 2 {
		simdops.Float64Ops().Interleave2(pcm[:2*n], e.slots[0].pcm[:n], e.slots[1].pcm[:n])
		return n
	}
	for c, s := range e.slots {
		for i, v := range s.pcm[:n] {
			pcm[i*ch+c] = v
		}
	}
	return n
}

// reverseInPlace plays a DSD buffer backwards: byte order and the bit order
// within every byte are reversed.
func reverseInPlace(p []byte) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = bits.Reverse8(p[j]), bits.Reverse8(p[i])
	}
	if len(p)%2 == 1 {
		mid := len(p) / 2
		p[mid] = bits.Reverse8(p[mid])
	}
}

// Close stops the channel workers. Workers still converting after a short
// grace period are abandoned and logged.
func (e *Engine) Close() {
	if e.quit == nil {
		return
	}
	close(e.quit)

	done := make(chan struct{})
	g := e.g
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		for _, s := range e.slots {
			if s.busy.Load() {
				e.log.Errorf("could not stop DSD to PCM converter for channel %d", s.id)
			}
		}
	}
	e.quit = nil
	e.g = nil
}

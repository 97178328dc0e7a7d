// Package dstpool decodes DST frames on a ring of worker slots.
//
// Each slot owns a decoder, an input buffer, an output buffer and one
// goroutine. Decode hands frame k to the current slot and returns the frame
// submitted len(slots)-1 calls earlier, so frames come out in submission
// order with a fixed pipeline latency.
package dstpool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/dst"
	"github.com/tphakala/go-sacd/internal/logutil"
)

const (
	// DefaultSlots is the default number of decoder slots.
	DefaultSlots = 8

	closeTimeout = 100 * time.Millisecond

	// DefaultWaitTimeout bounds the wait for one slot in Decode.
	DefaultWaitTimeout = 5 * time.Second
)

var (
	// ErrDecodeFault indicates a frame could not be decoded. The frame is
	// replaced with DSD silence.
	ErrDecodeFault = errors.New("dstpool: frame decode fault")

	// ErrInit indicates the slots could not be initialised.
	ErrInit = errors.New("dstpool: initialisation failed")
)

// FrameDecoder decodes one DST frame into out.
type FrameDecoder interface {
	Decode(out, frame []byte) error
}

// DecoderFactory builds a frame decoder for a stream format.
type DecoderFactory func(channels, sampleRate, frameRate int) (FrameDecoder, error)

func newDSTDecoder(channels, sampleRate, frameRate int) (FrameDecoder, error) {
	return dst.NewDecoder(channels, sampleRate, frameRate)
}

type format struct {
	channels   int
	sampleRate int
	frameRate  int
}

type slotState int32

const (
	slotEmpty slotState = iota
	slotLoaded
	slotRunning
	slotReady
	slotReadyWithError
	slotTerminating
)

type slot struct {
	id      int
	state   atomic.Int32
	frameNr int

	in  []byte
	out []byte
	dec FrameDecoder

	put chan struct{}
	get chan struct{}

	// queued is owned by the driving goroutine and set while a submitted
	// frame has not been collected.
	queued bool
}

func (s *slot) setState(st slotState) { s.state.Store(int32(st)) }
func (s *slot) getState() slotState { return slotState(s.state.Load()) }

// Pool is a ring of DST decoder slots. It is driven from one goroutine.
type Pool struct {
	log        logging.LeveledLogger
	newDecoder DecoderFactory

	slots    []*slot
	current  int
	frameNr  int
	inflight int

	format    format
	frameSize int
	spare     []byte

	// WaitTimeout bounds how long Decode waits for a slot. A slot that
	// overruns it is abandoned and its frame returned as silence.
	WaitTimeout time.Duration

	// quit and g belong to the current generation of workers. Workers
	// receive their own copy of quit and never read these fields.
	quit chan struct{}
	g    *errgroup.Group
}

// New returns a pool with n slots. A non-positive n selects DefaultSlots.
func New(n int, f logging.LoggerFactory) *Pool {
	if n <= 0 {
		n = DefaultSlots
	}
	return &Pool{
		log:         logutil.Scoped(f, "dstpool"),
		newDecoder:  newDSTDecoder,
		slots:       make([]*slot, n),
		WaitTimeout: DefaultWaitTimeout,
	}
}

// Slots returns the number of slots in the ring.
func (p *Pool) Slots() int { return len(p.slots) }

// FrameSize returns the size of a decoded frame in bytes.
func (p *Pool) FrameSize() int { return p.frameSize }

// Init prepares every slot for frames of the given format. Running workers
// from an earlier Init are stopped first.
func (p *Pool) Init(channels, sampleRate, frameRate int) error {
	p.Close()

	p.frameSize = container.FrameBytes(sampleRate, frameRate, channels)
	if p.frameSize <= 0 {
		return fmt.Errorf("%w: %d channels at %d Hz, %d frames/s", ErrInit, channels, sampleRate, frameRate)
	}

	f := format{channels: channels, sampleRate: sampleRate, frameRate: frameRate}
	for i := range p.slots {
		s, err := p.newSlot(i, f)
		if err != nil {
			p.log.Errorf("could not initialize decoder slot %d: %v", i, err)
			return fmt.Errorf("%w: slot %d: %w", ErrInit, i, err)
		}
		p.slots[i] = s
	}

	p.format = f
	p.spare = make([]byte, p.frameSize)
	p.current = 0
	p.frameNr = 0
	p.inflight = 0
	p.quit = make(chan struct{})
	p.g = new(errgroup.Group)
	for _, s := range p.slots {
		p.start(s)
	}
	return nil
}

func (p *Pool) newSlot(id int, f format) (*slot, error) {
	dec, err := p.newDecoder(f.channels, f.sampleRate, f.frameRate)
	if err != nil {
		return nil, err
	}
	return &slot{
		id:  id,
		out: make([]byte, p.frameSize),
		dec: dec,
		put: make(chan struct{}, 1),
		get: make(chan struct{}, 1),
	}, nil
}

func (p *Pool) start(s *slot) {
	quit, f := p.quit, p.format
	p.g.Go(func() error {
		p.work(s, quit, f)
		return nil
	})
}

func (p *Pool) work(s *slot, quit <-chan struct{}, f format) {
	for {
		select {
		case <-quit:
			return
		case <-s.put:
		}

		s.setState(slotRunning)
		if err := p.decode(s); err != nil {
			p.log.Warnf("exception caught while decoding frame %d: %v", s.frameNr, err)
			if dec, rerr := p.newDecoder(f.channels, f.sampleRate, f.frameRate); rerr == nil {
				s.dec = dec
			} else {
				p.log.Errorf("could not reinitialize decoder slot %d: %v", s.id, rerr)
			}
			s.setState(slotReadyWithError)
		} else {
			s.setState(slotReady)
		}
		s.get <- struct{}{}
	}
}

func (p *Pool) decode(s *slot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrDecodeFault, r)
		}
	}()
	if err := s.dec.Decode(s.out, s.in); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFault, err)
	}
	return nil
}

// Decode submits frame and returns the oldest decoded frame, or nil while
// the pipeline fills. A nil or empty frame submits nothing, which drains
// one frame per call. A frame that failed to decode, or whose slot did not
// finish within WaitTimeout, comes back as FrameSize bytes of DSD silence.
// The returned slice is valid until the next call.
func (p *Pool) Decode(frame []byte) []byte {
	if p.quit == nil {
		return nil
	}

	s := p.slots[p.current]
	s.frameNr = p.frameNr
	if len(frame) > 0 {
		s.in = append(s.in[:0], frame...)
		s.setState(slotLoaded)
		s.queued = true
		p.inflight++
		s.put <- struct{}{}
	} else {
		s.setState(slotEmpty)
	}

	p.current = (p.current + 1) % len(p.slots)
	p.frameNr++

	s = p.slots[p.current]
	if !s.queued {
		return nil
	}
	if !p.collect(p.current) {
		container.Silence(p.spare)
		return p.spare
	}
	if s.getState() == slotReadyWithError {
		container.Silence(s.out)
	}
	return s.out
}

// collect waits for the frame queued on slot i. When the wait times out the
// slot is replaced with a fresh one and false is returned.
func (p *Pool) collect(i int) bool {
	s := p.slots[i]
	s.queued = false
	p.inflight--

	timer := time.NewTimer(p.WaitTimeout)
	defer timer.Stop()
	select {
	case <-s.get:
		return true
	case <-timer.C:
	}

	p.log.Warnf("DST decoder slot %d timed out on frame %d", s.id, s.frameNr)
	fresh, err := p.newSlot(s.id, p.format)
	if err != nil {
		p.log.Errorf("could not reinitialize decoder slot %d: %v", s.id, err)
		return false
	}
	p.slots[i] = fresh
	p.start(fresh)
	return false
}

// Reset discards every queued frame so the next Decode starts an empty
// pipeline. It is used after a seek.
func (p *Pool) Reset() {
	if p.quit == nil {
		return
	}
	for i, s := range p.slots {
		if s.queued {
			p.collect(i)
		}
		p.slots[i].setState(slotEmpty)
	}
	p.current = 0
	p.inflight = 0
}

// Pending reports whether a submitted frame has not been returned yet.
func (p *Pool) Pending() bool {
	return p.inflight > 0
}

// Close stops the workers. Workers still decoding after a short grace
// period are abandoned and logged.
func (p *Pool) Close() {
	if p.quit == nil {
		return
	}
	for _, s := range p.slots {
		if st := s.getState(); st != slotLoaded && st != slotRunning {
			s.setState(slotTerminating)
		}
	}
	close(p.quit)

	done := make(chan struct{})
	g := p.g
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		for _, s := range p.slots {
			if s.getState() == slotRunning {
				p.log.Errorf("could not stop DST decoder slot %d", s.id)
			}
		}
	}
	p.quit = nil
	p.g = nil
	p.inflight = 0
}

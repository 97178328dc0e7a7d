package sacd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"golang.org/x/time/rate"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/container/disc"
	"github.com/tphakala/go-sacd/internal/container/dsdiff"
	"github.com/tphakala/go-sacd/internal/container/dsf"
	"github.com/tphakala/go-sacd/internal/dsdpcm"
	"github.com/tphakala/go-sacd/internal/dstpool"
	"github.com/tphakala/go-sacd/internal/logutil"
	"github.com/tphakala/go-sacd/internal/media"
	"github.com/tphakala/go-sacd/internal/pipeline"
)

// Tags is the metadata of one track.
type Tags = container.Tags

// Room for DST frames that are stored uncompressed and so exceed the DSD
// frame size by their header.
const dstHeadroom = 1024

// State is the position of a Decoder in its track lifecycle.
type State int

const (
	// StateIdle is a decoder without a selected track.
	StateIdle State = iota
	// StateInitialized is a decoder positioned at the start of a track.
	StateInitialized
	// StateRunning is a decoder that has delivered audio of the track.
	StateRunning
	// StateCompleted is a decoder past the end of the track.
	StateCompleted
	stateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Chunk is the audio of one Run call. Exactly one of PCM and DSD is set.
// Both slices are reused by the next Run.
type Chunk struct {
	// PCM holds interleaved samples, nominally within [-1, 1].
	PCM []float64
	// DSD holds byte-interleaved DSD, eight 1-bit samples per byte, MSB first.
	DSD []byte

	Channels    int
	SampleRate  int
	ChannelMask ChannelMask
}

// Frames returns the number of samples per channel in the chunk. For DSD the
// count is in bytes per channel.
func (c Chunk) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	if c.DSD != nil {
		return len(c.DSD) / c.Channels
	}
	return len(c.PCM) / c.Channels
}

// TrackInfo describes one subsong.
type TrackInfo struct {
	Duration      time.Duration
	SampleRate    int
	Channels      int
	BitsPerSample int
	// Codec is "DSD" or "DST" followed by the rate multiple of 44.1 kHz.
	Codec string
	// Bitrate is the uncompressed stream rate in bits per second.
	Bitrate     int
	Area        AreaSelect
	ChannelMask ChannelMask
	Tags        Tags
}

type editMaster interface {
	SetEditMaster(on bool)
}

type badReads interface {
	BadReads() int
}

// Decoder decodes the tracks of one SACD container. It is driven from one
// goroutine.
type Decoder struct {
	log logging.LeveledLogger
	id  uuid.UUID
	sid string
	cfg Config

	src    media.Source
	reader container.Reader
	kind   string
	state  State

	// Subsong numbering, fixed at open.
	area     AreaSelect
	twoCh    int
	mulCh    int
	subsongs int

	// Current track.
	channels   int
	dsdRate    int
	frameRate  int
	frameSize  int
	pcmMinRate int
	pcmRate    int
	pcmSamples int
	mask       ChannelMask
	trackName  string

	session   *Session
	engine    *dsdpcm.Engine
	ownEngine *dsdpcm.Engine
	pool      *dstpool.Pool
	poolReady bool

	frameBuf  []byte
	pcmBuf    []float64
	delay     float64
	delta     int
	pcmOffset uint64
	faults    int

	bitrate    [bitrateFrames]int
	bitrateIdx int
	bitrateSum int

	overloads *rate.Sometimes
}

// Open opens a disc image, raw SACD drive, DSDIFF file or DSF file.
func Open(path string, cfg Config) (*Decoder, error) {
	src, err := openMedia(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	d, err := newDecoder(src, cfg)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return d, nil
}

// OpenBytes opens a container image held in memory. Tag commits modify the
// slice contents.
func OpenBytes(data []byte, cfg Config) (*Decoder, error) {
	return newDecoder(media.NewMemory(data), cfg)
}

func openMedia(path string) (media.Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeDevice != 0 {
		dev, err := media.OpenDevice(path)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	f, err := media.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newDecoder(src media.Source, cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	d := &Decoder{
		log: logutil.Scoped(cfg.LoggerFactory, "sacd"),
		id:  id,
		sid: id.String()[:8],
		cfg: cfg,
		src: src,
	}

	r, kind, err := detect(src, cfg.LoggerFactory)
	if err != nil {
		return nil, err
	}
	if em, ok := r.(editMaster); ok {
		em.SetEditMaster(cfg.EditMaster)
	}
	if err := r.Open(src, cfg.openMode()); err != nil {
		return nil, err
	}
	d.reader, d.kind = r, kind
	d.numberSubsongs()

	d.log.Debugf("[%s] opened %s: %d two-channel and %d multichannel tracks, exposing %d",
		d.sid, kind, d.twoCh, d.mulCh, d.subsongs)
	return d, nil
}

// detect picks the reader for the container in src.
func detect(src media.Source, f logging.LoggerFactory) (container.Reader, string, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	head := make([]byte, 16)
	n, _ := io.ReadFull(src, head)
	head = head[:n]

	switch {
	case dsf.Probe(head):
		return dsf.New(f), "dsf", nil
	case dsdiff.Probe(head):
		return dsdiff.New(f), "dsdiff", nil
	case disc.Probe(src) > 0:
		return disc.New(f), "disc", nil
	default:
		return nil, "", fmt.Errorf("%w: no SACD, DSDIFF or DSF signature", ErrFormat)
	}
}

// numberSubsongs applies the area selection. An empty selected area falls
// back to the other one.
func (d *Decoder) numberSubsongs() {
	d.twoCh = d.reader.TrackCount(container.AreaTwoCh)
	d.mulCh = d.reader.TrackCount(container.AreaMulCh)

	switch d.cfg.Area {
	case AreaTwoChannel:
		if d.twoCh > 0 {
			d.area, d.subsongs = AreaTwoChannel, d.twoCh
			return
		}
		d.area, d.subsongs = AreaBoth, d.mulCh
	case AreaMultichannel:
		if d.mulCh > 0 {
			d.area, d.subsongs = AreaMultichannel, d.mulCh
			return
		}
		d.area, d.subsongs = AreaBoth, d.twoCh
	default:
		d.area, d.subsongs = AreaBoth, d.twoCh+d.mulCh
	}
}

// SubsongCount returns the number of tracks in the selected areas.
func (d *Decoder) SubsongCount() int {
	return d.subsongs
}

// locate maps a subsong to its absolute index over both areas and to the
// area and index within that area.
func (d *Decoder) locate(subsong int) (abs int, area container.Area, index int, err error) {
	if subsong < 0 || subsong >= d.subsongs {
		return 0, 0, 0, fmt.Errorf("%w: subsong %d of %d", ErrNoTrack, subsong, d.subsongs)
	}
	abs = subsong
	if d.area == AreaMultichannel {
		abs += d.twoCh
	}
	if abs < d.twoCh {
		return abs, container.AreaTwoCh, abs, nil
	}
	return abs, container.AreaMulCh, abs - d.twoCh, nil
}

// Info describes subsong without changing the decoding position.
func (d *Decoder) Info(subsong int) (TrackInfo, error) {
	if d.state == stateClosed {
		return TrackInfo{}, fmt.Errorf("%w: decoder is closed", ErrState)
	}
	abs, area, index, err := d.locate(subsong)
	if err != nil {
		return TrackInfo{}, err
	}
	prev := d.reader.Area()
	defer d.reader.SetArea(prev)
	d.reader.SetArea(area)

	dsdRate := d.reader.SampleRate()
	channels := d.reader.Channels()
	info := TrackInfo{
		Duration:      time.Duration(d.reader.TrackDuration(index) * float64(time.Second)),
		SampleRate:    max(minPCMRate(d.reader.FrameRate()), d.cfg.PCMRate),
		Channels:      channels,
		BitsPerSample: 24,
		Codec:         codecName(d.reader.IsDST(), dsdRate),
		Bitrate:       dsdRate * channels,
		Area:          areaSelect(area),
		ChannelMask:   channelMask(d.reader.LoudspeakerConfig(), channels),
		Tags:          d.reader.Tags(abs),
	}
	if d.cfg.Output == OutputDSD {
		info.SampleRate = dsdRate
		info.BitsPerSample = 1
	}
	return info, nil
}

func codecName(dst bool, dsdRate int) string {
	name := "DSD"
	if dst {
		name = "DST"
	}
	return fmt.Sprintf("%s%d", name, dsdRate/Rate44k1)
}

func areaSelect(a container.Area) AreaSelect {
	if a == container.AreaMulCh {
		return AreaMultichannel
	}
	return AreaTwoChannel
}

// minPCMRate returns the smallest multiple of 44.1 kHz by a power of two that
// holds a whole number of samples per frame.
func minPCMRate(frameRate int) int {
	r := Rate44k1
	if frameRate <= 0 {
		return r
	}
	for r%frameRate != 0 {
		r *= 2
	}
	return r
}

// Initialize positions the decoder at the start of subsong and prepares the
// DST pool and the converter for its format.
//
// A nil session selects conversion: the track gets its own converter and the
// filter delay is trimmed from the start and restored at the end. With a
// session the converter is shared with earlier tracks and no trimming takes
// place.
func (d *Decoder) Initialize(subsong int, sess *Session) error {
	if d.state == stateClosed {
		return fmt.Errorf("%w: decoder is closed", ErrState)
	}
	abs, area, index, err := d.locate(subsong)
	if err != nil {
		return err
	}
	d.reader.SetArea(area)
	if err := d.reader.SetTrack(index, area, 0); err != nil {
		return err
	}

	d.channels = d.reader.Channels()
	d.dsdRate = d.reader.SampleRate()
	d.frameRate = d.reader.FrameRate()
	d.frameSize = container.FrameBytes(d.dsdRate, d.frameRate, d.channels)
	if d.channels <= 0 || d.frameSize <= 0 {
		return fmt.Errorf("%w: %d channels at %d Hz, %d frames/s",
			ErrFormat, d.channels, d.dsdRate, d.frameRate)
	}
	if need := d.frameSize + dstHeadroom; cap(d.frameBuf) < need {
		d.frameBuf = make([]byte, need)
	}
	d.frameBuf = d.frameBuf[:d.frameSize+dstHeadroom]

	d.mask = channelMask(d.reader.LoudspeakerConfig(), d.channels)
	d.pcmMinRate = minPCMRate(d.frameRate)
	d.pcmRate = max(d.pcmMinRate, d.cfg.PCMRate)
	d.pcmSamples = d.pcmRate / d.frameRate

	d.bitrate = [bitrateFrames]int{}
	d.bitrateIdx, d.bitrateSum = 0, 0
	d.pcmOffset = 0
	d.faults = 0
	d.session = sess
	d.overloads = &rate.Sometimes{First: overloadBurst, Interval: time.Second}

	d.trackName = d.reader.Tags(abs).Title
	if d.trackName == "" {
		d.trackName = "Untitled"
	}

	// Frames still queued belong to the previous track.
	if d.pool != nil {
		d.pool.Close()
		d.poolReady = false
	}

	if d.cfg.Output == OutputPCM {
		if err := d.initConverter(); err != nil {
			return err
		}
	}

	d.state = StateInitialized
	d.log.Debugf("[%s] subsong %d: %s track %d, %d ch, %s, %d Hz out, delay %.2f",
		d.sid, subsong, area, index, d.channels, codecName(d.reader.IsDST(), d.dsdRate), d.outputRate(), d.delay)
	return nil
}

func (d *Decoder) initConverter() error {
	eng, skip := d.ownEngine, false
	if d.session != nil {
		eng, skip = d.session.engine, d.session.TrackCompleted
		d.session.TrackCompleted = false
	} else if eng == nil {
		eng = dsdpcm.New(d.cfg.LoggerFactory)
		d.ownEngine = eng
	}

	params := dsdpcm.InitParams{
		Channels:        d.channels,
		FrameRate:       d.frameRate,
		DSDRate:         d.dsdRate,
		PCMRate:         d.pcmRate,
		Mode:            d.cfg.Converter.pipelineMode(),
		FP64:            d.cfg.Converter.FP64(),
		GainDB:          d.cfg.GainDB,
		SkipIfUnchanged: skip,
	}
	if params.Mode == pipeline.ModeUser {
		params.UserFIR = d.cfg.UserFIR
	}
	if _, err := eng.Init(params); err != nil {
		d.log.Warnf("[%s] %s converter unavailable, falling back to direct: %v", d.sid, d.cfg.Converter, err)
		params.Mode, params.UserFIR = pipeline.ModeDirect, nil
		if _, err := eng.Init(params); err != nil {
			return fmt.Errorf("%w: %w", ErrInit, err)
		}
	}
	d.engine = eng

	d.delay = 0
	if d.session == nil {
		d.delay = eng.Delay()
	}
	d.delta = min(int(d.delay+0.5), d.pcmSamples-1)

	if need := eng.OutputSize(d.frameSize); len(d.pcmBuf) < need {
		d.pcmBuf = make([]float64, need)
	}
	return nil
}

// Run delivers the next chunk of the current track. It returns io.EOF once
// the track is complete. Read and decode faults are reported as silence and
// the track is abandoned with ErrTooManyFaults after too many in a row.
func (d *Decoder) Run(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	switch d.state {
	case StateIdle, stateClosed:
		return Chunk{}, fmt.Errorf("%w: run while %s", ErrState, d.state)
	case StateCompleted:
		return Chunk{}, io.EOF
	}
	d.state = StateRunning

	c, err := d.runSafe()
	switch {
	case err == nil, errors.Is(err, io.EOF):
		d.faults = 0
		return c, err
	case errors.Is(err, ErrInit):
		d.state = StateCompleted
		return Chunk{}, err
	}

	d.faults++
	d.log.Warnf("[%s] fault while decoding: %v", d.sid, err)
	if d.faults >= maxFaults {
		d.state = StateCompleted
		return Chunk{}, fmt.Errorf("%w: %w", ErrTooManyFaults, err)
	}
	return d.silence(), nil
}

func (d *Decoder) runSafe() (c Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDecodeFault, r)
		}
	}()
	return d.run()
}

func (d *Decoder) run() (Chunk, error) {
	buf := d.frameBuf[:d.frameSize]
	if d.reader.IsDST() {
		buf = d.frameBuf
	}
	for {
		f, err := d.reader.ReadFrame(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Chunk{}, err
		}

		data := f.Data
		if f.Kind == container.FrameInvalid {
			data = d.frameBuf[:d.frameSize]
			container.Silence(data)
		}
		if len(data) == 0 {
			continue
		}
		d.addBitrate(len(data))

		dsd := data
		if f.Kind == container.FrameDST {
			if dsd, err = d.decodeDST(data); err != nil {
				return Chunk{}, err
			}
		}
		if len(dsd) > 0 {
			return d.emit(dsd), nil
		}
	}
	return d.finish()
}

func (d *Decoder) decodeDST(frame []byte) ([]byte, error) {
	if d.pool == nil {
		d.pool = dstpool.New(d.cfg.DSTSlots, d.cfg.LoggerFactory)
	}
	if !d.poolReady {
		if err := d.pool.Init(d.channels, d.dsdRate, d.frameRate); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInit, err)
		}
		d.poolReady = true
	}
	return d.pool.Decode(frame), nil
}

// finish drains the DST pool, then completes the track. In conversion mode
// the samples held back by the filter delay are appended.
func (d *Decoder) finish() (Chunk, error) {
	var dsd []byte
	for d.poolReady && len(dsd) == 0 && d.pool.Pending() {
		dsd = d.pool.Decode(nil)
	}
	if len(dsd) > 0 {
		return d.emit(dsd), nil
	}

	d.state = StateCompleted
	if d.session != nil {
		d.session.TrackCompleted = true
	}
	if d.cfg.Output == OutputDSD || d.delta == 0 {
		return Chunk{}, io.EOF
	}

	n := min(d.engine.Convert(nil, d.pcmBuf), d.delta)
	if n == 0 {
		return Chunk{}, io.EOF
	}
	pcm := d.pcmBuf[:n*d.channels]
	fixEnd(pcm, d.channels)
	d.checkOverloads(pcm)
	d.pcmOffset += uint64(n)
	d.trace("tail of %d samples", n)
	return d.pcmChunk(pcm), nil
}

func (d *Decoder) emit(dsd []byte) Chunk {
	if d.cfg.Output == OutputDSD {
		d.trace("dsd frame of %d bytes", len(dsd))
		return Chunk{
			DSD:         dsd,
			Channels:    d.channels,
			SampleRate:  d.dsdRate,
			ChannelMask: d.mask,
		}
	}

	remove := 0
	if !d.engine.ConvertCalled() {
		remove = d.delta
	}
	n := d.engine.Convert(dsd, d.pcmBuf)
	remove = min(remove, max(n-1, 0))
	pcm := d.pcmBuf[remove*d.channels : n*d.channels]
	if remove > 0 {
		fixStart(pcm, d.channels)
	}
	d.checkOverloads(pcm)
	d.pcmOffset += uint64(n - remove)
	d.trace("pcm chunk of %d samples", n-remove)
	return d.pcmChunk(pcm)
}

// silence stands in for one frame that could not be delivered.
func (d *Decoder) silence() Chunk {
	if d.cfg.Output == OutputDSD {
		data := d.frameBuf[:d.frameSize]
		container.Silence(data)
		return d.emit(data)
	}
	pcm := d.pcmBuf[:d.pcmSamples*d.channels]
	clear(pcm)
	d.pcmOffset += uint64(d.pcmSamples)
	return d.pcmChunk(pcm)
}

func (d *Decoder) pcmChunk(pcm []float64) Chunk {
	return Chunk{
		PCM:         pcm,
		Channels:    d.channels,
		SampleRate:  d.pcmRate,
		ChannelMask: d.mask,
	}
}

// fixStart replaces the first sample, which is shaped by the priming
// boundary, with the second.
func fixStart(pcm []float64, channels int) {
	if len(pcm) < 2*channels {
		return
	}
	copy(pcm[:channels], pcm[channels:2*channels])
}

// fixEnd replaces the last sample with the one before it.
func fixEnd(pcm []float64, channels int) {
	n := len(pcm) / channels
	if n < 2 {
		return
	}
	copy(pcm[(n-1)*channels:], pcm[(n-2)*channels:(n-1)*channels])
}

func (d *Decoder) addBitrate(frameBytes int) {
	d.bitrateIdx = (d.bitrateIdx + 1) % bitrateFrames
	d.bitrateSum -= d.bitrate[d.bitrateIdx]
	d.bitrate[d.bitrateIdx] = frameBytes * bitsPerByte * d.frameRate
	d.bitrateSum += d.bitrate[d.bitrateIdx]
}

// Bitrate returns the stream bitrate in bits per second averaged over the
// last frames read. For DST streams it reflects the compressed size.
func (d *Decoder) Bitrate() int {
	return d.bitrateSum / bitrateFrames
}

// Seek moves to pos from the start of the current track. DST frames queued
// before the seek are dropped.
func (d *Decoder) Seek(pos time.Duration) error {
	if d.state != StateInitialized && d.state != StateRunning {
		return fmt.Errorf("%w: seek while %s", ErrState, d.state)
	}
	if err := d.reader.Seek(pos.Seconds()); err != nil {
		return err
	}
	if d.poolReady {
		d.pool.Reset()
	}
	d.pcmOffset = uint64(pos.Seconds() * float64(d.pcmRate))
	d.trace("seek to %s", pos)
	return nil
}

// Tags returns the metadata of subsong.
func (d *Decoder) Tags(subsong int) (Tags, error) {
	abs, _, _, err := d.locate(subsong)
	if err != nil {
		return Tags{}, err
	}
	return d.reader.Tags(abs), nil
}

// SetTags replaces the metadata of subsong. Changes are written by Commit.
func (d *Decoder) SetTags(subsong int, tags Tags) error {
	if !d.cfg.EditableTags {
		return fmt.Errorf("%w: tag editing is disabled", ErrNotSupported)
	}
	abs, _, _, err := d.locate(subsong)
	if err != nil {
		return err
	}
	return d.reader.SetTags(abs, tags)
}

// Commit writes changed tags back to the container.
func (d *Decoder) Commit() error {
	if !d.cfg.EditableTags {
		return fmt.Errorf("%w: tag editing is disabled", ErrNotSupported)
	}
	return d.reader.Commit()
}

// SessionID identifies the decoder in log output.
func (d *Decoder) SessionID() uuid.UUID { return d.id }

// State returns the lifecycle state.
func (d *Decoder) State() State { return d.state }

// Container returns "disc", "dsdiff" or "dsf".
func (d *Decoder) Container() string { return d.kind }

// Channels returns the channel count of the current track.
func (d *Decoder) Channels() int { return d.channels }

// ChannelMask returns the speaker layout of the current track.
func (d *Decoder) ChannelMask() ChannelMask { return d.mask }

// Delay returns the converter delay in output samples that is compensated
// for the current track.
func (d *Decoder) Delay() float64 { return d.delay }

// SampleRate returns the rate of the chunks Run delivers for the current
// track.
func (d *Decoder) SampleRate() int { return d.outputRate() }

func (d *Decoder) outputRate() int {
	if d.cfg.Output == OutputDSD {
		return d.dsdRate
	}
	return d.pcmRate
}

// BadReads returns the number of frames lost to unreadable disc sectors.
func (d *Decoder) BadReads() int {
	if br, ok := d.reader.(badReads); ok {
		return br.BadReads()
	}
	return 0
}

// Close stops the worker goroutines and closes the source. It is safe to
// call more than once.
func (d *Decoder) Close() error {
	if d.state == stateClosed {
		return nil
	}
	d.state = stateClosed
	if d.pool != nil {
		d.pool.Close()
	}
	if d.ownEngine != nil {
		d.ownEngine.Close()
	}
	err := d.reader.Close()
	if cerr := d.src.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *Decoder) trace(format string, args ...any) {
	if d.cfg.Trace {
		d.log.Debugf("[%s] "+format, append([]any{d.sid}, args...)...)
	}
}

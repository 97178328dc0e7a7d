package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	sacd "github.com/tphakala/go-sacd"
	"github.com/tphakala/go-sacd/internal/dop"
)

const (
	// Sample format constants
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	// Conversion constants
	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	// WAVE_FORMAT_PCM
	wavFormatPCM = 1

	maxTitleLen = 80
)

// options holds the settings shared by all track conversions.
type options struct {
	input   string
	outDir  string
	cfg     sacd.Config
	bits    int
	dop     bool
	verbose bool
}

func (o *options) validate() error {
	switch o.bits {
	case bitsPerSample16, bitsPerSample24, bitsPerSample32:
	default:
		return fmt.Errorf("unsupported bit depth %d", o.bits)
	}
	return o.cfg.Validate()
}

// trackStats summarises one converted track.
type trackStats struct {
	path     string
	codec    string
	channels int
	rate     int
	bits     int
	frames   int64
	duration time.Duration
}

// loadFIR reads whitespace or comma separated coefficients. Lines starting
// with '#' are skipped.
func loadFIR(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FIR file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var coeffs []float64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			coeffs = append(coeffs, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read FIR file: %w", err)
	}
	if len(coeffs) == 0 {
		return nil, fmt.Errorf("%s: no coefficients", path)
	}
	return coeffs, nil
}

// getMaxValue returns the maximum sample value for the given bit depth.
func getMaxValue(bitDepth int) float64 {
	switch bitDepth {
	case bitsPerSample16:
		return maxInt16
	case bitsPerSample24:
		return maxInt24
	case bitsPerSample32:
		return maxInt32
	default:
		return maxInt16
	}
}

// trackFileName returns "NN - Title.wav", or "NN.wav" for untitled tracks.
func trackFileName(number int, title string) string {
	title = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if len(title) > maxTitleLen {
		title = strings.TrimSpace(title[:maxTitleLen])
	}
	if title == "" {
		return fmt.Sprintf("%02d.wav", number)
	}
	return fmt.Sprintf("%02d - %s.wav", number, title)
}

// wavOutput wraps the output file and its go-audio encoder.
type wavOutput struct {
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	maxVal float64
}

// createWAVOutput creates the output file and encoder.
func createWAVOutput(path string, sampleRate, bitDepth, channels int) (*wavOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &wavOutput{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, channels, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		maxVal: getMaxValue(bitDepth),
	}, nil
}

// setTags stores the track tags in a LIST INFO chunk.
func (w *wavOutput) setTags(t sacd.Tags) {
	if t.Title == "" && t.Artist == "" && t.Album == "" {
		return
	}
	m := &wav.Metadata{
		Title:        t.Title,
		Artist:       t.Artist,
		Product:      t.Album,
		Genre:        t.Genre,
		CreationDate: t.Date,
		Comments:     t.Comment,
		Software:     "sacd2wav",
	}
	if t.TrackNumber > 0 {
		m.TrackNbr = strconv.Itoa(t.TrackNumber)
	}
	w.enc.Metadata = m
}

// writePCM clamps samples to [-1, 1] and writes them at the output depth.
func (w *wavOutput) writePCM(pcm []float64) error {
	data := w.buf.Data[:0]
	for _, v := range pcm {
		v = max(-1, min(1, v))
		data = append(data, int(v*w.maxVal))
	}
	w.buf.Data = data
	return w.enc.Write(w.buf)
}

// writeDoP packs DSD bytes into DoP samples and writes them. It returns the
// number of sample frames written.
func (w *wavOutput) writeDoP(p *dop.Packer, dsd []byte) (int, error) {
	need := p.OutputSize(len(dsd))
	if cap(w.buf.Data) < need {
		w.buf.Data = make([]int, need)
	}
	n := p.Pack(dsd, w.buf.Data[:need])
	if n == 0 {
		return 0, nil
	}
	w.buf.Data = w.buf.Data[:n*p.Channels()]
	return n, w.enc.Write(w.buf)
}

// Close finalises the WAV header and closes the file.
func (w *wavOutput) Close() error {
	if err := w.enc.Close(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// convertTrack decodes one subsong into a WAV file in opts.outDir.
func convertTrack(ctx context.Context, opts options, subsong int) (stats trackStats, err error) {
	d, err := sacd.Open(opts.input, opts.cfg)
	if err != nil {
		return stats, err
	}
	defer func() { _ = d.Close() }()

	info, err := d.Info(subsong)
	if err != nil {
		return stats, err
	}
	if err := d.Initialize(subsong, nil); err != nil {
		return stats, err
	}

	rate, bits := info.SampleRate, opts.bits
	var packer *dop.Packer
	if opts.dop {
		rate, bits = dop.Rate(info.SampleRate), dop.BitDepth
		if packer, err = dop.NewPacker(info.Channels); err != nil {
			return stats, err
		}
	}

	path := filepath.Join(opts.outDir, trackFileName(subsong+1, info.Tags.Title))
	if opts.verbose {
		log.Printf("Track %d: %s, %d channels, %s -> %s", subsong+1, info.Codec, info.Channels, info.Duration.Round(time.Millisecond), path)
	}

	out, err := createWAVOutput(path, rate, bits, info.Channels)
	if err != nil {
		return stats, err
	}
	// Close output, capturing close errors on success path (important for WAV header updates)
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()
	out.setTags(info.Tags)

	stats = trackStats{
		path:     path,
		codec:    info.Codec,
		channels: info.Channels,
		rate:     rate,
		bits:     bits,
		duration: info.Duration,
	}

	for {
		c, err := d.Run(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		if packer != nil {
			n, err := out.writeDoP(packer, c.DSD)
			if err != nil {
				return stats, fmt.Errorf("failed to write audio data: %w", err)
			}
			stats.frames += int64(n)
			continue
		}
		if err := out.writePCM(c.PCM); err != nil {
			return stats, fmt.Errorf("failed to write audio data: %w", err)
		}
		stats.frames += int64(c.Frames())
	}

	if opts.verbose && d.BadReads() > 0 {
		log.Printf("Track %d: %d unreadable sectors", subsong+1, d.BadReads())
	}
	return stats, nil
}

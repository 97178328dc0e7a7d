// Command sacd2wav converts the tracks of a SACD image, DSF or DSDIFF file to
// WAV files.
//
// Usage:
//
//	sacd2wav -rate 88.2 album.iso outdir/
//	sacd2wav -track 3 -bits 16 album.iso outdir/           # Single track
//	sacd2wav -area mch -converter direct-fp64 album.iso out/ # Multichannel area
//	sacd2wav -dop input.dsf outdir/                         # DSD over PCM
//
// Tracks are converted concurrently, each with its own decoder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"golang.org/x/sync/errgroup"

	sacd "github.com/tphakala/go-sacd"
	"github.com/tphakala/go-sacd/internal/logutil"
)

const (
	// CLI defaults
	defaultRateKHz  = 44.1
	defaultBits     = 24
	minRequiredArgs = 2
	kHzToHz         = 1000
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	rateKHz := flag.Float64("rate", defaultRateKHz, "PCM rate in kHz: 44.1, 88.2, 176.4 or 352.8")
	bits := flag.Int("bits", defaultBits, "Output bit depth: 16, 24 or 32")
	converter := flag.String("converter", "multistage", "Converter: multistage, direct or user, optionally with -fp32/-fp64")
	firPath := flag.String("fir", "", "Text file with DSD stage coefficients for the user converter")
	area := flag.String("area", "both", "Disc area: both, 2ch or mch")
	gain := flag.Float64("gain", 0, "Volume adjustment in dB")
	track := flag.Int("track", 0, "Convert only this track (1-based), 0 converts all")
	dopOut := flag.Bool("dop", false, "Write DSD over PCM instead of converting")
	editMaster := flag.Bool("edit-master", false, "Play pre-gaps as part of the previous track")
	singleTrack := flag.Bool("single-track", false, "Ignore DSDIFF markers")
	jobs := flag.Int("j", runtime.NumCPU(), "Number of tracks converted concurrently")
	verbose := flag.Bool("v", false, "Verbose output")
	cpuprofile := flag.String("cpuprofile", "", "Write CPU profile to file (for PGO)")
	flag.Parse()

	args := flag.Args()
	if len(args) < minRequiredArgs {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input output-dir\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -rate 88.2 album.iso out/   # All tracks at 88.2 kHz\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -track 2 -bits 16 song.dsf out/\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dop song.dff out/           # DoP for a DSD DAC\n", os.Args[0])
		return fmt.Errorf("insufficient arguments")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		}()
	}

	cfg := sacd.DefaultConfig()
	cfg.PCMRate = int(*rateKHz*kHzToHz + 0.5)
	cfg.GainDB = *gain
	cfg.EditMaster = *editMaster
	cfg.SingleTrack = *singleTrack
	cfg.LogOverloads = *verbose
	if !*verbose {
		cfg.LoggerFactory = logutil.Discard()
	}
	if *dopOut {
		cfg.Output = sacd.OutputDSD
	}

	var err error
	if cfg.Converter, err = sacd.ParseConverterMode(*converter); err != nil {
		return err
	}
	if cfg.Area, err = sacd.ParseAreaSelect(*area); err != nil {
		return err
	}
	if *firPath != "" {
		if cfg.UserFIR, err = loadFIR(*firPath); err != nil {
			return err
		}
	}

	opts := options{
		input:   args[0],
		outDir:  args[1],
		cfg:     cfg,
		bits:    *bits,
		dop:     *dopOut,
		verbose: *verbose,
	}
	if err := opts.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	stats, err := convertAll(ctx, opts, *track, *jobs)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	var audioTime time.Duration
	for _, s := range stats {
		fmt.Printf("%s\n", filepath.Base(s.path))
		fmt.Printf("  %s %d ch -> %d Hz %d-bit, %d frames\n", s.codec, s.channels, s.rate, s.bits, s.frames)
		audioTime += s.duration
	}
	if elapsed > 0 {
		fmt.Printf("Converted %d tracks in %.2fs, Speed: %.1fx realtime\n",
			len(stats), elapsed.Seconds(), audioTime.Seconds()/elapsed.Seconds())
	}
	return nil
}

// convertAll converts the selected tracks with at most jobs running at once.
func convertAll(ctx context.Context, opts options, track, jobs int) ([]trackStats, error) {
	d, err := sacd.Open(opts.input, opts.cfg)
	if err != nil {
		return nil, err
	}
	count := d.SubsongCount()
	_ = d.Close()

	if count == 0 {
		return nil, fmt.Errorf("%s: no tracks", opts.input)
	}
	first, last := 0, count
	if track > 0 {
		if track > count {
			return nil, fmt.Errorf("track %d out of range (1-%d)", track, count)
		}
		first, last = track-1, track
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stats := make([]trackStats, last-first)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i := first; i < last; i++ {
		g.Go(func() error {
			s, err := convertTrack(ctx, opts, i)
			if err != nil {
				return fmt.Errorf("track %d: %w", i+1, err)
			}
			stats[i-first] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Command analyze-cascade prints the DSD to PCM cascades with the measured
// response of every stage.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/bits"
	"os"

	"github.com/tphakala/go-sacd/internal/filter"
	"github.com/tphakala/go-sacd/internal/pipeline"
)

const (
	// Response sampling
	minResponsePoints = 512
	pointsPerTap      = 2

	// Measure the passband up to this share of the cutoff and the stopband
	// from the alias of that edge.
	passbandShare = 0.8

	dsdRate64 = 2822400
)

func main() {
	mode := flag.String("mode", "all", "Cascade family: multistage, direct or all")
	ratio := flag.Int("ratio", 0, "Only this DSD/PCM ratio, 0 shows all")
	flag.Parse()

	var modes []pipeline.Mode
	switch *mode {
	case "all":
		modes = []pipeline.Mode{pipeline.ModeMultistage, pipeline.ModeDirect}
	case "multistage":
		modes = []pipeline.Mode{pipeline.ModeMultistage}
	case "direct":
		modes = []pipeline.Mode{pipeline.ModeDirect}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	ratios := pipeline.SupportedRatios()
	if *ratio != 0 {
		ratios = []int{*ratio}
	}

	for _, m := range modes {
		for _, r := range ratios {
			if err := analyze(os.Stdout, m, r); err != nil {
				log.Fatal(err)
			}
		}
	}
}

// stageReport is the measured response of one cascade stage.
type stageReport struct {
	name       string
	taps       int
	decimation int
	delay      float64
	dcGain     float64
	rippleDB   float64
	stopFrom   float64
	stopbandDB float64
}

func measureStage(s pipeline.StageSpec) (stageReport, error) {
	coeffs, err := s.Filter.Coefficients()
	if err != nil {
		return stageReport{}, err
	}
	d := s.Filter.Design()

	points := max(minResponsePoints, 1<<bits.Len(uint(pointsPerTap*len(coeffs))))
	resp := filter.ComputeFrequencyResponse(coeffs, points)

	edge := d.CutoffFreq * passbandShare
	rep := stageReport{
		name:       s.Filter.String(),
		taps:       s.FilterLength,
		decimation: s.Decimation,
		delay:      s.Delay(),
		rippleDB:   filter.PassbandRipple(resp, edge),
		stopFrom:   1/float64(s.Decimation) - edge,
	}
	for _, c := range coeffs {
		rep.dcGain += c
	}
	rep.stopbandDB = filter.StopbandAttenuation(resp, rep.stopFrom)
	return rep, nil
}

// analyze writes the cascade of ratio in mode m to w.
func analyze(w io.Writer, m pipeline.Mode, ratio int) error {
	p, err := pipeline.BuildPipeline(ratio, m, 0)
	if err != nil {
		return fmt.Errorf("%s /%d: %w", m, ratio, err)
	}

	fmt.Fprintf(w, "=== %s /%d (DSD64 -> %d Hz) ===\n", m, ratio, dsdRate64/ratio)
	for i, s := range p.GetStages() {
		rep, err := measureStage(s)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %d. %-6s %5d taps  /%-3d delay %7.2f  DC %.6f  ripple %.4f dB  stopband >=%.4f: %.1f dB\n",
			i+1, rep.name, rep.taps, rep.decimation, rep.delay, rep.dcGain, rep.rippleDB, rep.stopFrom, rep.stopbandDB)
	}
	fmt.Fprintf(w, "  Total latency: %.2f output samples\n\n", p.GetTotalLatency())
	return nil
}

// Package pipeline plans the decimation cascades of the DSD to PCM converter.
//
// A cascade starts with one DSD stage that filters the 1-bit stream and
// decimates it to PCM, followed by zero or more decimate-by-2 PCM stages.
// The cascade is chosen by the ratio between the DSD and PCM rates.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-sacd/internal/filter"
)

// ErrUnsupportedRatio is returned for a DSD/PCM rate ratio without a cascade.
var ErrUnsupportedRatio = errors.New("unsupported DSD to PCM ratio")

// Mode selects the cascade family.
type Mode int

const (
	// ModeMultistage uses a short DSD stage and more PCM halving stages.
	ModeMultistage Mode = iota

	// ModeDirect uses one long DSD stage and as few PCM stages as possible.
	ModeDirect

	// ModeUser is ModeDirect with caller supplied DSD stage coefficients.
	ModeUser
)

func (m Mode) String() string {
	switch m {
	case ModeMultistage:
		return "multistage"
	case ModeDirect:
		return "direct"
	case ModeUser:
		return "user"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StageSpec specifies one stage of a cascade.
type StageSpec struct {
	Filter filter.Stage

	// Decimation is counted in stage input samples, bits for the DSD stage.
	Decimation int

	// FilterLength is the number of taps.
	FilterLength int
}

// Delay returns the group delay of the stage in its output samples.
func (s StageSpec) Delay() float64 {
	return float64(s.FilterLength-1) / halfDivisor / float64(s.Decimation)
}

// Pipeline is a planned cascade.
type Pipeline struct {
	stages       []StageSpec
	mode         Mode
	totalRatio   int
	totalLatency float64
}

// BuildPipeline plans the cascade for ratio = dsd rate / pcm rate.
// userTaps is the length of the user filter and only matters in ModeUser.
func BuildPipeline(ratio int, mode Mode, userTaps int) (*Pipeline, error) {
	var table map[int][]filter.Stage
	dsdDecimation := 0

	switch mode {
	case ModeMultistage:
		table = multistageCascades
		dsdDecimation = multistageDSDDecimation(ratio)
	case ModeDirect, ModeUser:
		table = directCascades
		dsdDecimation = directDSDDecimation(ratio)
	default:
		return nil, fmt.Errorf("unknown converter mode %d", int(mode))
	}

	stages, ok := table[ratio]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRatio, ratio)
	}
	if mode == ModeUser && userTaps <= 0 {
		return nil, fmt.Errorf("user mode needs filter coefficients")
	}

	p := &Pipeline{
		stages:     make([]StageSpec, 0, len(stages)),
		mode:       mode,
		totalRatio: ratio,
	}

	for i, st := range stages {
		spec := StageSpec{
			Filter:       st,
			Decimation:   pcmStageDecimation,
			FilterLength: st.Design().NumTaps,
		}
		if i == 0 {
			spec.Decimation = dsdDecimation
			if mode == ModeUser {
				spec.FilterLength = userTaps
			}
		}
		p.stages = append(p.stages, spec)
	}

	p.calculateLatency()

	return p, nil
}

// calculateLatency folds the stage delays into output samples:
// ((d1/dec2 + d2)/dec3 + d3)...
func (p *Pipeline) calculateLatency() {
	latency := 0.0
	for i, stage := range p.stages {
		if i > 0 {
			latency /= float64(stage.Decimation)
		}
		latency += stage.Delay()
	}
	p.totalLatency = latency
}

// GetStages returns the cascade stages, DSD stage first.
func (p *Pipeline) GetStages() []StageSpec {
	return p.stages
}

// DSDStage returns the first stage.
func (p *Pipeline) DSDStage() StageSpec {
	return p.stages[0]
}

// PCMStages returns the stages after the DSD stage.
func (p *Pipeline) PCMStages() []StageSpec {
	return p.stages[1:]
}

// Mode returns the cascade family.
func (p *Pipeline) Mode() Mode {
	return p.mode
}

// GetTotalRatio returns the combined decimation of all stages.
func (p *Pipeline) GetTotalRatio() int {
	return p.totalRatio
}

// GetTotalLatency returns the cascade group delay in output samples.
func (p *Pipeline) GetTotalLatency() float64 {
	return p.totalLatency
}

func multistageDSDDecimation(ratio int) int {
	if ratio >= longCascadeRatio {
		return dsdDecimation16
	}
	return dsdDecimation8
}

func directDSDDecimation(ratio int) int {
	switch {
	case ratio >= directMaxRatio:
		return dsdDecimation64
	case ratio >= directMidRatio:
		return dsdDecimation32
	default:
		return ratio
	}
}

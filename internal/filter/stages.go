package filter

import (
	"fmt"
	"sync"
)

// Stage identifies one prototype filter of the DSD to PCM cascades.
type Stage int

const (
	// StageDSD8 is the first stage of the short multistage cascades (ratios 8 to 32).
	StageDSD8 Stage = iota
	// StageDSD16 is the first stage of the long multistage cascades (ratios 64 to 512).
	StageDSD16
	// StageDSD64 is the single DSD stage of the direct cascades. Its band
	// suits decimation by 64, so it also serves the smaller direct ratios.
	StageDSD64
	// StageHalf is an intermediate decimate-by-2 PCM stage. Its passband only
	// has to protect the band a later halving stage keeps.
	StageHalf
	// StageFinal is the last decimate-by-2 PCM stage, which sets the output band.
	StageFinal

	numStages
)

// StageDesign is the prototype of a cascade stage.
type StageDesign struct {
	Name string

	NumTaps int

	// CutoffFreq is normalized to the stage input rate.
	CutoffFreq float64

	Attenuation float64

	// DSD stages filter 1-bit input and are evaluated through byte tables.
	DSD bool
}

// Tap counts of the DSD stages are whole bytes.
var stageDesigns = [numStages]StageDesign{
	StageDSD8:  {Name: "dsd8", NumTaps: 384, CutoffFreq: 0.055, Attenuation: 120, DSD: true},
	StageDSD16: {Name: "dsd16", NumTaps: 704, CutoffFreq: 0.0275, Attenuation: 120, DSD: true},
	StageDSD64: {Name: "dsd64", NumTaps: 4096, CutoffFreq: 0.0078, Attenuation: 110, DSD: true},
	StageHalf:  {Name: "half", NumTaps: 40, CutoffFreq: 0.25, Attenuation: 120},
	StageFinal: {Name: "final", NumTaps: 168, CutoffFreq: 0.25, Attenuation: 120},
}

var stageCoefficients [numStages]func() ([]float64, error)

func init() {
	for s := range numStages {
		d := stageDesigns[s]
		stageCoefficients[s] = sync.OnceValues(func() ([]float64, error) {
			return DesignLowPassFilter(FilterParams{
				NumTaps:     d.NumTaps,
				CutoffFreq:  d.CutoffFreq,
				Attenuation: d.Attenuation,
				Gain:        1.0,
			})
		})
	}
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	return s >= 0 && s < numStages
}

// Design returns the stage prototype.
func (s Stage) Design() StageDesign {
	if !s.Valid() {
		return StageDesign{}
	}
	return stageDesigns[s]
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageDesigns[s].Name
}

// Coefficients returns the unity gain coefficients of the stage. They are
// designed on first use and shared afterwards; callers must not modify them.
func (s Stage) Coefficients() ([]float64, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown filter stage %d", int(s))
	}
	return stageCoefficients[s]()
}

package pipeline

import "github.com/tphakala/go-sacd/internal/filter"

const (
	halfDivisor = 2.0

	pcmStageDecimation = 2

	dsdDecimation8  = 8
	dsdDecimation16 = 16
	dsdDecimation32 = 32
	dsdDecimation64 = 64

	// Multistage cascades switch to the /16 DSD stage from this ratio on.
	longCascadeRatio = 64

	// Direct cascades decimate by 64 in the DSD stage from directMaxRatio,
	// by 32 from directMidRatio, and by the whole ratio below that.
	directMaxRatio = 128
	directMidRatio = 32
)

// Ratios with a cascade, smallest first.
var supportedRatios = []int{8, 16, 32, 64, 128, 256, 512}

var multistageCascades = map[int][]filter.Stage{
	512: {filter.StageDSD16, filter.StageHalf, filter.StageHalf, filter.StageHalf, filter.StageHalf, filter.StageFinal},
	256: {filter.StageDSD16, filter.StageHalf, filter.StageHalf, filter.StageHalf, filter.StageFinal},
	128: {filter.StageDSD16, filter.StageHalf, filter.StageHalf, filter.StageFinal},
	64:  {filter.StageDSD16, filter.StageHalf, filter.StageFinal},
	32:  {filter.StageDSD8, filter.StageHalf, filter.StageFinal},
	16:  {filter.StageDSD8, filter.StageFinal},
	8:   {filter.StageDSD8},
}

var directCascades = map[int][]filter.Stage{
	512: {filter.StageDSD64, filter.StageHalf, filter.StageHalf, filter.StageFinal},
	256: {filter.StageDSD64, filter.StageHalf, filter.StageFinal},
	128: {filter.StageDSD64, filter.StageFinal},
	64:  {filter.StageDSD64, filter.StageFinal},
	32:  {filter.StageDSD64},
	16:  {filter.StageDSD64},
	8:   {filter.StageDSD64},
}

// SupportedRatios returns the DSD/PCM ratios BuildPipeline accepts.
func SupportedRatios() []int {
	return append([]int(nil), supportedRatios...)
}

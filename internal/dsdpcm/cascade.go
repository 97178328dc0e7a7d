package dsdpcm

import (
	"github.com/tphakala/go-sacd/internal/pipeline"
	"github.com/tphakala/go-sacd/internal/simdops"
)

// converter runs one channel through its cascade.
type converter interface {
	// convert filters dsd and writes the PCM samples it completes to pcm.
	convert(dsd []byte, pcm []float64) int
}

// design holds the read-only filter tables one Init shares between channels.
type design[F simdops.Float] struct {
	plan      *pipeline.Pipeline
	dsdTables [][256]F
	pcmCoeffs [][]F
}

func newDesign[F simdops.Float](plan *pipeline.Pipeline, dsdCoeffs []float64, gain float64, pcmCoeffs [][]float64) *design[F] {
	d := &design[F]{
		plan:      plan,
		dsdTables: byteTables[F](dsdCoeffs, gain),
		pcmCoeffs: make([][]F, len(pcmCoeffs)),
	}
	for i, c := range pcmCoeffs {
		d.pcmCoeffs[i] = reversedCoefficients[F](c)
	}
	return d
}

// cascade is one channel's chain of stages with its own delay lines.
type cascade[F simdops.Float] struct {
	dsd  *dsdStage[F]
	pcm  []*pcmStage[F]
	work [2][]F
}

func (d *design[F]) newCascade() *cascade[F] {
	c := &cascade[F]{
		dsd: newDSDStage(d.dsdTables, d.plan.DSDStage().Decimation),
	}
	for i, spec := range d.plan.PCMStages() {
		c.pcm = append(c.pcm, newPCMStage(d.pcmCoeffs[i], spec.Decimation))
	}
	return c
}

func (c *cascade[F]) convert(dsd []byte, pcm []float64) int {
	if need := len(dsd)/c.dsd.decimation + 1; len(c.work[0]) < need {
		c.work[0] = make([]F, need)
		c.work[1] = make([]F, need)
	}

	cur, next := c.work[0], c.work[1]
	n := c.dsd.run(dsd, cur)
	for _, s := range c.pcm {
		n = s.run(cur[:n], next)
		cur, next = next, cur
	}

	n = min(n, len(pcm))
	for i, v := range cur[:n] {
		pcm[i] = float64(v)
	}
	return n
}

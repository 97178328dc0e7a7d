package sacd

import (
	"fmt"
	"math"
	"strings"

	"github.com/pion/logging"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/pipeline"
)

// Config holds decoder configuration.
type Config struct {
	// Output selects PCM conversion or DSD passthrough.
	Output OutputMode

	// PCMRate is the requested PCM output rate in Hz. It is raised to the
	// smallest rate that gives a whole number of samples per frame.
	PCMRate int

	// Converter selects the cascade family and arithmetic precision.
	Converter ConverterMode

	// UserFIR holds the DSD stage coefficients for the user converter modes.
	UserFIR []float64

	// Area selects the disc program areas exposed as subsongs.
	Area AreaSelect

	// EditMaster plays disc pre-gaps as part of the previous track and makes
	// DSDIFF tracks run to the next start marker.
	EditMaster bool

	// SingleTrack ignores DSDIFF markers so the file plays as one track.
	SingleTrack bool

	// GainDB is the output volume adjustment in dB.
	GainDB float64

	// LogOverloads reports PCM samples outside [-1, 1].
	LogOverloads bool

	// EditableTags allows SetTags and Commit.
	EditableTags bool

	// Trace logs chunk and seek events at debug level.
	Trace bool

	// DSTSlots is the number of DST decoder slots. Zero selects the default.
	DSTSlots int

	// LoggerFactory creates the component loggers. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns the configuration used when nothing is customised:
// PCM at 44.1 kHz through the float32 multistage converter, both areas.
func DefaultConfig() Config {
	return Config{
		Output:        OutputPCM,
		PCMRate:       Rate44k1,
		Converter:     ConverterMultistageFP32,
		Area:          AreaBoth,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.PCMRate {
	case Rate44k1, Rate88k2, Rate176k4, Rate352k8:
	default:
		return fmt.Errorf("%w: unsupported PCM rate %d", ErrInvalidConfig, c.PCMRate)
	}

	if c.Output != OutputPCM && c.Output != OutputDSD {
		return fmt.Errorf("%w: unknown output mode %d", ErrInvalidConfig, c.Output)
	}

	if c.Converter < ConverterMultistageFP32 || c.Converter > ConverterUserFP64 {
		return fmt.Errorf("%w: unknown converter mode %d", ErrInvalidConfig, c.Converter)
	}

	if c.Area < AreaBoth || c.Area > AreaMultichannel {
		return fmt.Errorf("%w: unknown area %d", ErrInvalidConfig, c.Area)
	}

	if math.IsNaN(c.GainDB) || math.Abs(c.GainDB) > maxGainDB {
		return fmt.Errorf("%w: gain must be within +/-%g dB", ErrInvalidConfig, maxGainDB)
	}

	if c.DSTSlots < 0 || c.DSTSlots > maxDSTSlots {
		return fmt.Errorf("%w: DST slots must be 0-%d", ErrInvalidConfig, maxDSTSlots)
	}

	return nil
}

func (c *Config) openMode() container.Mode {
	var m container.Mode
	if c.SingleTrack {
		m |= container.ModeSingleTrack
	}
	if c.EditMaster {
		m |= container.ModeFullPlayback
	}
	return m
}

// OutputMode selects what Run delivers.
type OutputMode int

const (
	// OutputPCM converts DSD to PCM.
	OutputPCM OutputMode = iota
	// OutputDSD passes DSD bytes through unchanged.
	OutputDSD
)

// String returns the output mode name.
func (m OutputMode) String() string {
	switch m {
	case OutputPCM:
		return "pcm"
	case OutputDSD:
		return "dsd"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// ConverterMode combines a cascade family with an arithmetic precision.
type ConverterMode int

const (
	ConverterMultistageFP32 ConverterMode = iota
	ConverterMultistageFP64
	ConverterDirectFP32
	ConverterDirectFP64
	ConverterUserFP32
	ConverterUserFP64
)

var converterNames = [...]string{
	ConverterMultistageFP32: "multistage-fp32",
	ConverterMultistageFP64: "multistage-fp64",
	ConverterDirectFP32:     "direct-fp32",
	ConverterDirectFP64:     "direct-fp64",
	ConverterUserFP32:       "user-fp32",
	ConverterUserFP64:       "user-fp64",
}

// String returns names such as "multistage-fp64".
func (m ConverterMode) String() string {
	if m < 0 || int(m) >= len(converterNames) {
		return fmt.Sprintf("ConverterMode(%d)", int(m))
	}
	return converterNames[m]
}

// ParseConverterMode parses the names returned by ConverterMode.String.
// A name without precision suffix selects float32.
func ParseConverterMode(s string) (ConverterMode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasSuffix(key, "-fp32") && !strings.HasSuffix(key, "-fp64") {
		key += "-fp32"
	}
	for m, name := range converterNames {
		if name == key {
			return ConverterMode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown converter mode %q", ErrInvalidConfig, s)
}

// FP64 reports whether the converter computes in float64.
func (m ConverterMode) FP64() bool {
	return m%2 == 1
}

func (m ConverterMode) pipelineMode() pipeline.Mode {
	switch m {
	case ConverterDirectFP32, ConverterDirectFP64:
		return pipeline.ModeDirect
	case ConverterUserFP32, ConverterUserFP64:
		return pipeline.ModeUser
	default:
		return pipeline.ModeMultistage
	}
}

// AreaSelect selects the disc program areas that are exposed as subsongs.
type AreaSelect int

const (
	// AreaBoth exposes the two-channel tracks followed by the multichannel ones.
	AreaBoth AreaSelect = iota
	// AreaTwoChannel exposes the stereo area.
	AreaTwoChannel
	// AreaMultichannel exposes the multichannel area.
	AreaMultichannel
)

// String returns the area name.
func (a AreaSelect) String() string {
	switch a {
	case AreaBoth:
		return "both"
	case AreaTwoChannel:
		return "2ch"
	case AreaMultichannel:
		return "multichannel"
	default:
		return fmt.Sprintf("AreaSelect(%d)", int(a))
	}
}

// ParseAreaSelect parses "both", "2ch" or "multichannel". "stereo" and "mch"
// are accepted as aliases.
func ParseAreaSelect(s string) (AreaSelect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "both", "":
		return AreaBoth, nil
	case "2ch", "stereo":
		return AreaTwoChannel, nil
	case "multichannel", "mch":
		return AreaMultichannel, nil
	default:
		return 0, fmt.Errorf("%w: unknown area %q", ErrInvalidConfig, s)
	}
}

package sacd

import (
	"errors"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/dsdpcm"
	"github.com/tphakala/go-sacd/internal/dstpool"
)

var (
	// ErrFormat indicates the input is not a recognised SACD container.
	ErrFormat = container.ErrFormat

	// ErrIO indicates the media could not be read or written.
	ErrIO = container.ErrIO

	// ErrNoTrack indicates a subsong index out of range.
	ErrNoTrack = container.ErrNoTrack

	// ErrNotSupported indicates the container cannot perform the operation.
	ErrNotSupported = container.ErrNotSupported

	// ErrDecodeFault indicates a DST frame could not be decoded. Such frames
	// are replaced with silence and never returned from Run.
	ErrDecodeFault = dstpool.ErrDecodeFault

	// ErrUnsupportedRatio indicates no cascade exists for the rate ratio.
	ErrUnsupportedRatio = dsdpcm.ErrUnsupportedRatio

	// ErrNoUserFIR indicates user converter mode without coefficients.
	ErrNoUserFIR = dsdpcm.ErrNoUserFIR

	// ErrInit indicates the track could not be prepared for decoding.
	ErrInit = errors.New("sacd: track initialisation failed")

	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("sacd: invalid configuration")

	// ErrState indicates a call that is not valid in the decoder state.
	ErrState = errors.New("sacd: invalid decoder state")

	// ErrTooManyFaults indicates a track was abandoned after repeated faults.
	ErrTooManyFaults = errors.New("sacd: too many consecutive faults")
)

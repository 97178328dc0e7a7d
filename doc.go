// Package sacd decodes Super Audio CD content in pure Go.
//
// It reads DSD audio, optionally DST compressed, from SACD disc images or raw
// drives, DSDIFF (.dff) files and DSF (.dsf) files. Audio is delivered either
// as PCM converted through cascaded decimating FIR filters or as the original
// DSD bytes.
//
// # Features
//
//   - Disc images with 2048 or 2064 byte sectors, two-channel and
//     multichannel areas, track text in all SACD character sets
//   - DSDIFF with DST compression, edit master markers and ID3 chunks
//   - DSF with per-file ID3 tags
//   - Parallel DST decoding on a ring of worker slots
//   - DSD to PCM at 44.1, 88.2, 176.4 or 352.8 kHz in float32 or float64
//   - Group delay compensation so decoded tracks stay sample aligned
//   - Tag editing and sample rate rewriting for DSDIFF and DSF files, see
//     [Decoder.Commit] and [SetSampleRate]
//
// # Quick Start
//
//	cfg := sacd.DefaultConfig()
//	cfg.PCMRate = sacd.Rate88k2
//
//	d, err := sacd.Open("album.iso", cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	if err := d.Initialize(0, nil); err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    chunk, err := d.Run(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    write(chunk.PCM)
//	}
//
// # Subsongs
//
// A disc holds up to two program areas. [Decoder.SubsongCount] numbers the
// tracks of the areas selected by [Config.Area], two-channel tracks first.
// When the selected area is empty the decoder falls back to the other one.
//
// # Converter Modes
//
// The conversion ratio is the DSD rate divided by the PCM rate and must be a
// power of two between 8 and 512:
//
//   - Multistage: a short DSD stage decimating by 8 or 16 followed by half
//     band PCM stages. This is the cheapest option.
//   - Direct: one long DSD stage decimating by up to 64 followed by at most
//     three PCM stages.
//   - User: like Direct with caller supplied DSD stage coefficients.
//
// Each mode exists in float32 and float64 precision, see [ConverterMode].
// If the configured mode cannot be built the decoder retries in Direct mode.
//
// # Playback and Conversion
//
// [Decoder.Initialize] takes an optional [Session]. With a session the decoder
// behaves like a player: converter state is shared across tracks so gapless
// albums stay continuous, and no delay compensation is applied. Without a
// session each track gets its own converter and the filter delay is trimmed
// from the start and restored at the end of the track.
//
// # Thread Safety
//
// A [Decoder] is driven from one goroutine. The DST pool and the converter use
// their own worker goroutines internally.
package sacd

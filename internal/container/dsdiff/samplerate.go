package dsdiff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tphakala/go-sacd/internal/container"
	"github.com/tphakala/go-sacd/internal/media"
)

// SetSampleRate rewrites the FS chunk and scales the FRTE frame rate so the
// stream plays at rate. It reports whether the file changed.
func SetSampleRate(src media.Source, rate int) (bool, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	ck, err := readChunk(src)
	if err != nil || ck.id != "FRM8" {
		return false, formatErr("missing FRM8 chunk", err)
	}
	if form, err := readID(src); err != nil || form != "DSD " {
		return false, formatErr("form type is not DSD", err)
	}

	var (
		updated bool
		oldRate int
	)
	end := chunkHeaderSize + int64(ck.size)
	for src.Position() < end {
		ck, err := readChunk(src)
		if err != nil {
			return updated, formatErr("truncated chunk header", err)
		}
		body := src.Position()
		switch ck.id {
		case "PROP":
			if _, err := readID(src); err != nil {
				return updated, formatErr("PROP", err)
			}
			propEnd := body + int64(ck.size)
			for src.Position() < propEnd {
				sub, err := readChunk(src)
				if err != nil {
					return updated, formatErr("truncated PROP", err)
				}
				subBody := src.Position()
				if sub.id == "FS  " && sub.size == 4 {
					v, err := readU32(src)
					if err != nil {
						return updated, formatErr("FS", err)
					}
					oldRate = int(v)
					if oldRate != rate {
						if err := writeU32At(src, subBody, uint32(rate)); err != nil {
							return updated, err
						}
						updated = true
					}
				}
				if err := skipTo(src, subBody+sub.padded()); err != nil {
					return updated, err
				}
			}
		case "DST ":
			frte, err := readChunk(src)
			if err != nil || frte.id != "FRTE" || frte.size != frteSize {
				return updated, formatErr("DST without FRTE", err)
			}
			if _, err := readU32(src); err != nil {
				return updated, formatErr("FRTE", err)
			}
			pos := src.Position()
			fr, err := readU16(src)
			if err != nil {
				return updated, formatErr("FRTE", err)
			}
			if oldRate != 0 && oldRate != rate {
				scaled := uint16(uint64(rate) * uint64(fr) / uint64(oldRate))
				var b [2]byte
				binary.BigEndian.PutUint16(b[:], scaled)
				if err := skipTo(src, pos); err != nil {
					return updated, err
				}
				if _, err := src.Write(b[:]); err != nil {
					return updated, fmt.Errorf("%w: %w", container.ErrIO, err)
				}
				updated = true
			}
		}
		if err := skipTo(src, body+ck.padded()); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func writeU32At(src media.Source, pos int64, v uint32) error {
	if err := skipTo(src, pos); err != nil {
		return err
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	if _, err := src.Write(b[:]); err != nil {
		return fmt.Errorf("%w: %w", container.ErrIO, err)
	}
	return nil
}

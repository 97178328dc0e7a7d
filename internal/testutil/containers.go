package testutil

import (
	"bytes"
	"encoding/binary"
)

// DSFImage describes a synthetic DSF file.
type DSFImage struct {
	ChannelType   uint32
	SampleRate    uint32
	BitsPerSample uint32
	BlockSize     int
	// Channels holds the DSD bytes of each channel in file bit order.
	Channels [][]byte
	ID3      []byte
}

// BuildDSF serialises img. Channel data is padded with zeros to whole
// blocks, as encoders do.
func BuildDSF(img DSFImage) []byte {
	le := binary.LittleEndian
	nch := len(img.Channels)
	perChannel := 0
	if nch > 0 {
		perChannel = len(img.Channels[0])
	}
	blocks := (perChannel + img.BlockSize - 1) / img.BlockSize

	var data bytes.Buffer
	for b := range blocks {
		for ch := range nch {
			block := make([]byte, img.BlockSize)
			lo := b * img.BlockSize
			hi := min(lo+img.BlockSize, perChannel)
			copy(block, img.Channels[ch][lo:hi])
			data.Write(block)
		}
	}

	const headerSize = 28 + 52 + 12
	fileSize := uint64(headerSize + data.Len() + len(img.ID3))
	var id3Offset uint64
	if len(img.ID3) > 0 {
		id3Offset = uint64(headerSize + data.Len())
	}

	out := make([]byte, 0, fileSize)
	out = append(out, "DSD "...)
	out = le.AppendUint64(out, 28)
	out = le.AppendUint64(out, fileSize)
	out = le.AppendUint64(out, id3Offset)

	out = append(out, "fmt "...)
	out = le.AppendUint64(out, 52)
	out = le.AppendUint32(out, 1)
	out = le.AppendUint32(out, 0)
	out = le.AppendUint32(out, img.ChannelType)
	out = le.AppendUint32(out, uint32(nch))
	out = le.AppendUint32(out, img.SampleRate)
	out = le.AppendUint32(out, img.BitsPerSample)
	out = le.AppendUint64(out, uint64(perChannel)*8)
	out = le.AppendUint32(out, uint32(img.BlockSize))
	out = le.AppendUint32(out, 0)

	out = append(out, "data"...)
	out = le.AppendUint64(out, uint64(12+data.Len()))
	out = append(out, data.Bytes()...)
	return append(out, img.ID3...)
}

// DSDIFF marker types.
const (
	MarkTrackStart uint16 = 0
	MarkTrackStop  uint16 = 1
)

// DSDIFFMarker is one DIIN/MARK record.
type DSDIFFMarker struct {
	Hours   uint16
	Minutes uint8
	Seconds uint8
	Samples uint32
	Offset  int32
	Type    uint16
	Text    string
}

// DSDIFFImage describes a synthetic DSDIFF file.
type DSDIFFImage struct {
	SampleRate uint32
	Channels   int
	// Loudspeaker, when non-nil, adds an LSCO chunk.
	Loudspeaker *uint16

	// Data is interleaved DSD for uncompressed files.
	Data []byte

	// DSTFrames switches the file to DST and holds the frame payloads.
	DSTFrames [][]byte
	FrameRate uint16
	WithIndex bool
	WithCRC   bool

	Markers []DSDIFFMarker
	PropID3 []byte
	ID3     [][]byte
}

type chunkWriter struct {
	bytes.Buffer
}

func (w *chunkWriter) chunk(id string, payload []byte) {
	w.WriteString(id)
	_ = binary.Write(&w.Buffer, binary.BigEndian, uint64(len(payload)))
	w.Write(payload)
	if len(payload)%2 == 1 {
		w.WriteByte(0)
	}
}

// BuildDSDIFF serialises img.
func BuildDSDIFF(img DSDIFFImage) []byte {
	be := binary.BigEndian

	var prop chunkWriter
	prop.WriteString("SND ")
	prop.chunk("FS  ", be.AppendUint32(nil, img.SampleRate))
	chnl := be.AppendUint16(nil, uint16(img.Channels))
	for ch := range img.Channels {
		chnl = append(chnl, 'C', byte('0'+ch/10), byte('0'+ch%10), ' ')
	}
	prop.chunk("CHNL", chnl)
	if img.DSTFrames != nil {
		prop.chunk("CMPR", append([]byte("DST "), 0, 0))
	} else {
		prop.chunk("CMPR", append([]byte("DSD "), 0, 0))
	}
	if img.Loudspeaker != nil {
		prop.chunk("LSCO", be.AppendUint16(nil, *img.Loudspeaker))
	}
	if img.PropID3 != nil {
		prop.chunk("ID3 ", img.PropID3)
	}

	var body chunkWriter
	body.WriteString("DSD ")
	body.chunk("FVER", be.AppendUint32(nil, 0x01050000))
	body.chunk("PROP", prop.Bytes())

	if img.DSTFrames == nil {
		body.chunk("DSD ", img.Data)
	} else {
		// Offsets recorded in DSTI point at DSTF payloads and are absolute.
		dstStart := 12 + body.Len() + 12
		var dst chunkWriter
		frte := be.AppendUint32(nil, uint32(len(img.DSTFrames)))
		dst.chunk("FRTE", be.AppendUint16(frte, img.FrameRate))
		var index []byte
		for _, f := range img.DSTFrames {
			index = be.AppendUint64(index, uint64(dstStart+dst.Len()+12))
			index = be.AppendUint32(index, uint32(len(f)))
			dst.chunk("DSTF", f)
			if img.WithCRC {
				dst.chunk("DSTC", []byte{0, 0, 0, 0})
			}
		}
		body.chunk("DST ", dst.Bytes())
		if img.WithIndex {
			body.chunk("DSTI", index)
		}
	}

	if len(img.Markers) > 0 {
		var diin chunkWriter
		for _, m := range img.Markers {
			rec := be.AppendUint16(nil, m.Hours)
			rec = append(rec, m.Minutes, m.Seconds)
			rec = be.AppendUint32(rec, m.Samples)
			rec = be.AppendUint32(rec, uint32(m.Offset))
			rec = be.AppendUint16(rec, m.Type)
			rec = be.AppendUint16(rec, 0)
			rec = be.AppendUint16(rec, 0)
			rec = be.AppendUint32(rec, uint32(len(m.Text)))
			rec = append(rec, m.Text...)
			diin.chunk("MARK", rec)
		}
		body.chunk("DIIN", diin.Bytes())
	}

	for _, tag := range img.ID3 {
		body.chunk("ID3 ", tag)
	}

	var out chunkWriter
	out.chunk("FRM8", body.Bytes())
	return out.Bytes()
}

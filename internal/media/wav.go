// Package media holds the small amount of media handling the tools need:
// wrapping PCM speech in a WAV container, decoding caller-supplied base64 and
// inspecting images locally.
package media

import (
	"bytes"
	"encoding/binary"
	"mime"
	"strconv"
)

// PCM defaults for text-to-speech output.
const (
	DefaultSampleRate    = 24000
	DefaultChannels      = 1
	DefaultBitsPerSample = 16
)

// PCMFormat describes raw little-endian PCM samples.
type PCMFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultPCM is 24 kHz mono signed 16-bit.
var DefaultPCM = PCMFormat{SampleRate: DefaultSampleRate, Channels: DefaultChannels, BitsPerSample: DefaultBitsPerSample}

// PCMFormatFromMime reads the rate parameter of a MIME type such as
// "audio/L16;codec=pcm;rate=24000", falling back to DefaultPCM.
func PCMFormatFromMime(mimeType string) PCMFormat {
	f := DefaultPCM
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return f
	}
	if r, err := strconv.Atoi(params["rate"]); err == nil && r > 0 {
		f.SampleRate = r
	}
	return f
}

// WrapPCM prepends a 44-byte RIFF/WAVE header to pcm.
func WrapPCM(pcm []byte, f PCMFormat) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8
	byteRate := f.SampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

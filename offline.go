package stepseq

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// RenderSamples runs the engine offline for the given duration and returns
// interleaved stereo frames. The engine's clock advances accordingly.
func (e *Engine) RenderSamples(seconds float64) []float32 {
	if seconds <= 0 {
		return nil
	}
	frames := int(float64(e.sampleRate) * seconds)
	out := make([]float32, frames*2)
	const block = 512
	for i := 0; i < len(out); i += block * 2 {
		end := i + block*2
		if end > len(out) {
			end = len(out)
		}
		e.seq.Process(out[i:end])
	}
	return out
}

// RenderWAV renders seconds of audio and writes it as a float WAV file.
func (e *Engine) RenderWAV(w io.Writer, seconds float64) error {
	samples := e.RenderSamples(seconds)
	if _, err := w.Write(EncodeWAVFloat32LE(samples, e.sampleRate, 2)); err != nil {
		return errors.Wrap(err, "stepseq: write wav")
	}
	return nil
}

// EncodeWAVFloat32LE wraps interleaved samples in a 32-bit float WAV header.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*channels*4))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*4))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}

// Package audio converts captured microphone blocks into the chunk payload
// the bridge accepts: base64 of 16-bit little-endian mono PCM at 16 kHz.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// TargetRate is the sample rate forwarded upstream
const TargetRate = 16000

// Encoder turns float32 capture blocks at an arbitrary native rate into
// base64 PCM16 chunks at TargetRate. It keeps resampler state between
// blocks and is not safe for concurrent use.
type Encoder struct {
	inputRate int
	resampler resampling.Resampler // nil when no rate conversion is needed
}

// NewEncoder creates an encoder for mono blocks sampled at inputRate Hz.
func NewEncoder(inputRate int) (*Encoder, error) {
	if inputRate <= 0 {
		return nil, fmt.Errorf("invalid input rate %d", inputRate)
	}

	e := &Encoder{inputRate: inputRate}
	if inputRate != TargetRate {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(inputRate),
			OutputRate: TargetRate,
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		e.resampler = r
	}
	return e, nil
}

// InputRate is the native rate the encoder was created for
func (e *Encoder) InputRate() int {
	return e.inputRate
}

// PCM16 converts one block to 16 kHz PCM16 bytes. With resampling, a block
// may yield fewer samples than its duration while the filter fills.
func (e *Encoder) PCM16(block []float32) ([]byte, error) {
	samples := make([]float64, len(block))
	for i, s := range block {
		samples[i] = float64(s)
	}

	if e.resampler != nil {
		out, err := e.resampler.Process(samples)
		if err != nil {
			return nil, fmt.Errorf("resample: %w", err)
		}
		samples = out
	}
	return FloatToPCM16(samples), nil
}

// Encode converts one block to the base64 payload of an audio chunk.
// An empty string means the block produced no output samples yet.
func (e *Encoder) Encode(block []float32) (string, error) {
	pcm, err := e.PCM16(block)
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}

// FloatToPCM16 clips samples to [-1, 1] and encodes them as signed 16-bit
// little-endian integers.
func FloatToPCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// PCM16ToFloat decodes signed 16-bit little-endian samples to [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

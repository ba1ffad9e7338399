package main

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/room4-2/livebridge/audio"
)

const chunkDuration = 100 * time.Millisecond

// source is an input file decoded to mono samples at a known rate
type source struct {
	rate int
	pcm  []byte    // PCM16 LE; set for pcm16 and wav inputs
	f32  []float32 // set for f32 input
}

func loadSource(path, format string, rate int) (*source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if format == "" {
		format = formatFromExt(path)
	}

	switch format {
	case "wav":
		return parseWAV(data)
	case "pcm16":
		log.Println("📁 Raw PCM16 input")
		return &source{rate: rate, pcm: data}, nil
	case "f32":
		log.Println("📁 Raw float32 input")
		samples := make([]float32, len(data)/4)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return &source{rate: rate, f32: samples}, nil
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "wav"
	case ".f32", ".raw32":
		return "f32"
	default:
		return "pcm16"
	}
}

// parseWAV reads a canonical 44-byte-header PCM16 mono WAV file
func parseWAV(data []byte) (*source, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV file")
	}
	channels := binary.LittleEndian.Uint16(data[22:24])
	rate := binary.LittleEndian.Uint32(data[24:28])
	bits := binary.LittleEndian.Uint16(data[34:36])
	if channels != 1 || bits != 16 {
		return nil, fmt.Errorf("unsupported WAV: %d channels, %d bits (want mono PCM16)", channels, bits)
	}
	log.Printf("📁 WAV input at %d Hz", rate)
	return &source{rate: int(rate), pcm: data[44:]}, nil
}

// chunks splits the source into base64 payloads of chunkDuration each.
// Input already at 16kHz PCM16 is sent as is, anything else goes through
// the capture encoder.
func (s *source) chunks() ([]string, error) {
	if s.pcm != nil && s.rate == audio.TargetRate {
		size := int(audio.TargetRate*chunkDuration/time.Second) * 2
		var out []string
		for i := 0; i < len(s.pcm); i += size {
			end := min(i+size, len(s.pcm))
			out = append(out, base64.StdEncoding.EncodeToString(s.pcm[i:end]))
		}
		return out, nil
	}

	samples := s.f32
	if s.pcm != nil {
		samples = audio.PCM16ToFloat(s.pcm)
	}

	enc, err := audio.NewEncoder(s.rate)
	if err != nil {
		return nil, err
	}
	block := int(time.Duration(s.rate) * chunkDuration / time.Second)
	var out []string
	for i := 0; i < len(samples); i += block {
		end := min(i+block, len(samples))
		payload, err := enc.Encode(samples[i:end])
		if err != nil {
			return nil, err
		}
		if payload != "" {
			out = append(out, payload)
		}
	}
	return out, nil
}

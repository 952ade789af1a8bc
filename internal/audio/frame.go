package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame is one inbound chunk of microphone audio as delivered by the client:
// a declared sample rate followed by float32 PCM samples.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Utterance is the concatenation of frames accumulated between two silence
// boundaries, the unit handed to transcription.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// DecodeFrame parses the wire format of a binary audio message:
// 4 bytes little-endian uint32 sample rate, then N*4 bytes float32 LE PCM.
func DecodeFrame(payload []byte) (Frame, error) {
	if len(payload) < 4 {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(payload))
	}
	rate := binary.LittleEndian.Uint32(payload[:4])
	if rate == 0 {
		return Frame{}, fmt.Errorf("frame declares zero sample rate")
	}

	samples, err := DecodeSamples(payload[4:])
	if err != nil {
		return Frame{}, err
	}

	return Frame{Samples: samples, SampleRate: int(rate)}, nil
}

// DecodeSamples parses a raw little-endian float32 PCM byte stream.
func DecodeSamples(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("sample payload length %d is not a multiple of 4", len(raw))
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// RMS returns the root mean square amplitude of the samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

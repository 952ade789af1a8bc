package pipeline

import (
	"github.com/mkarlsen/voiceloop/internal/audio"
)

// Segmenter accumulates inbound audio frames and emits the buffered span as
// one utterance when a frame scores below the silence threshold. The score is
// computed from the incoming frame alone, so an utterance ends on the first
// low-energy frame after accumulated speech (trailing-edge segmentation), not
// on a fixed window.
type Segmenter struct {
	threshold float64
	out       *Queue[audio.Utterance]

	buf        []float32
	sampleRate int
}

// NewSegmenter creates a segmenter emitting utterances onto out.
func NewSegmenter(threshold float64, out *Queue[audio.Utterance]) *Segmenter {
	return &Segmenter{threshold: threshold, out: out}
}

// OnFrame appends the frame to the current utterance buffer and flushes the
// buffer when the frame reads as silence. A silent first frame flushes a
// near-empty utterance; transcription tolerates and drops the empty result.
func (s *Segmenter) OnFrame(frame audio.Frame) {
	if s.sampleRate == 0 {
		s.sampleRate = frame.SampleRate
	}
	s.buf = append(s.buf, frame.Samples...)

	if VolumeScore(frame.Samples) < s.threshold {
		s.flush()
	}
}

func (s *Segmenter) flush() {
	samples := s.buf
	s.buf = nil
	s.out.Push(audio.Utterance{Samples: samples, SampleRate: s.sampleRate, Channels: 1})
}

// VolumeScore maps frame energy into (0,1) as rms/(rms+0.5); quiet frames
// score near zero, loud frames approach one.
func VolumeScore(samples []float32) float64 {
	rms := audio.RMS(samples)
	return rms / (rms + 0.5)
}

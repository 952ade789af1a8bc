package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mkarlsen/voiceloop/internal/audio"
)

// Transcriber converts mono PCM samples at a known rate into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// TranscriptionWorker drains segmented utterances, normalizes the audio to the
// engine's expected rate and publishes recognized text to both the generation
// input and the user echo stream. A non-empty transcript raises the interrupt
// before it is published, so an in-flight reply aborts before the new input is
// picked up.
type TranscriptionWorker struct {
	engine     Transcriber
	in         *Queue[audio.Utterance]
	out        *Broadcast[string]
	interrupt  *Signal
	targetRate int
	idle       time.Duration
}

// Run polls until the context is cancelled.
func (w *TranscriptionWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		utterance, ok := w.in.TryPop()
		if !ok {
			idleWait(ctx, w.idle)
			continue
		}

		samples := audio.Prepare(utterance, w.targetRate)
		text, err := w.engine.Transcribe(ctx, samples, w.targetRate)
		if err != nil {
			log.Printf("[transcription] engine error: %v", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			// Silence or noise; nothing downstream should react.
			continue
		}

		w.interrupt.Raise()
		w.out.Push(text)
	}
}

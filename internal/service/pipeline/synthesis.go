package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/mkarlsen/voiceloop/internal/analysis/mathspeak"
)

// Synthesizer converts a line of text into an audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesisWorker turns committed sentences into audio replies. Sentences are
// normalized for speech first; a sentence that normalizes to nothing is
// dropped, and an engine failure skips the sentence rather than ending the
// session.
type SynthesisWorker struct {
	engine Synthesizer
	in     *Queue[string]
	out    *Queue[[]byte]
	idle   time.Duration
}

// Run polls for sentences until the context is cancelled.
func (w *SynthesisWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sentence, ok := w.in.TryPop()
		if !ok {
			idleWait(ctx, w.idle)
			continue
		}

		text := mathspeak.Collapse(mathspeak.Normalize(sentence))
		if text == "" {
			continue
		}

		clip, err := w.engine.Synthesize(ctx, text)
		if err != nil {
			log.Printf("[synthesis] engine error: %v", err)
			continue
		}
		w.out.Push(clip)
	}
}

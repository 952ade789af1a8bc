package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mkarlsen/voiceloop/internal/audio"
)

// Default tuning, applied when an Options field is zero.
const (
	DefaultSilenceThreshold = 0.05
	DefaultTargetRate       = 16000
	DefaultIdleInterval     = 100 * time.Millisecond
)

// Options tunes one session's pipeline.
type Options struct {
	// SilenceThreshold is the voice-activity score below which a frame reads
	// as silence and closes the current utterance.
	SilenceThreshold float64
	// TargetSampleRate is the rate utterances are resampled to before
	// transcription.
	TargetSampleRate int
	// IdleInterval is the back-off each worker sleeps when its input queue
	// is empty.
	IdleInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.SilenceThreshold <= 0 {
		o.SilenceThreshold = DefaultSilenceThreshold
	}
	if o.TargetSampleRate <= 0 {
		o.TargetSampleRate = DefaultTargetRate
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = DefaultIdleInterval
	}
	return o
}

// Engines groups the external collaborators a session drives.
type Engines struct {
	Transcriber Transcriber
	Streamer    TokenStreamer
	Synthesizer Synthesizer
}

// Session owns the worker graph for one client conversation: segmentation,
// transcription, generation and synthesis, plus the queues wiring them
// together. All state is per session; nothing is shared across connections.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	opts      Options
	interrupt Signal
	segMu     sync.Mutex
	segmenter *Segmenter

	utterances  *Queue[audio.Utterance]
	transcripts *Broadcast[string]
	tokens      *Queue[string]
	sentences   *Queue[string]
	sound       *Queue[[]byte]

	transcription *TranscriptionWorker
	generation    *GenerationWorker
	synthesis     *SynthesisWorker
}

// NewSession wires the queues and workers; call Start to launch them.
func NewSession(parent context.Context, engines Engines, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		ctx:         ctx,
		cancel:      cancel,
		opts:        opts,
		utterances:  NewQueue[audio.Utterance](),
		transcripts: NewBroadcast[string](),
		tokens:      NewQueue[string](),
		sentences:   NewQueue[string](),
		sound:       NewQueue[[]byte](),
	}
	s.segmenter = NewSegmenter(opts.SilenceThreshold, s.utterances)
	s.transcription = &TranscriptionWorker{
		engine:     engines.Transcriber,
		in:         s.utterances,
		out:        s.transcripts,
		interrupt:  &s.interrupt,
		targetRate: opts.TargetSampleRate,
		idle:       opts.IdleInterval,
	}
	s.generation = &GenerationWorker{
		streamer:  engines.Streamer,
		in:        s.transcripts.Primary,
		tokens:    s.tokens,
		sentences: s.sentences,
		interrupt: &s.interrupt,
		idle:      opts.IdleInterval,
	}
	s.synthesis = &SynthesisWorker{
		engine: engines.Synthesizer,
		in:     s.sentences,
		out:    s.sound,
		idle:   opts.IdleInterval,
	}
	return s
}

// Start launches the transcription, generation and synthesis workers.
func (s *Session) Start() {
	s.runWorker(s.transcription.Run)
	s.runWorker(s.generation.Run)
	s.runWorker(s.synthesis.Run)
}

// StartTransmit attaches the client connection and launches the output
// multiplexer. Streaming transports call this once; polling transports skip
// it and drain the output queues directly.
func (s *Session) StartTransmit(conn Conn) {
	t := &TransmissionWorker{
		conn:   conn,
		tokens: s.tokens,
		echo:   s.transcripts.Mirror,
		sound:  s.sound,
		idle:   s.opts.IdleInterval,
		fatal:  s.cancel,
	}
	s.runWorker(t.Run)
}

func (s *Session) runWorker(run func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(s.ctx)
	}()
}

// HandleFrame decodes one binary audio message and feeds the segmenter. A
// malformed frame fails alone; the session keeps running.
func (s *Session) HandleFrame(payload []byte) error {
	frame, err := audio.DecodeFrame(payload)
	if err != nil {
		return err
	}
	s.segMu.Lock()
	s.segmenter.OnFrame(frame)
	s.segMu.Unlock()
	return nil
}

// HandleText feeds a typed user message into the pipeline, bypassing
// transcription. Blank input is ignored; anything else raises the barge-in
// interrupt exactly like a fresh transcript.
func (s *Session) HandleText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.transcripts.Push(text)
	s.interrupt.Raise()
}

// PopToken drains one assistant text item (token or end-of-message marker).
func (s *Session) PopToken() (string, bool) {
	return s.tokens.TryPop()
}

// PopTranscript drains one recognized user utterance from the echo stream.
func (s *Session) PopTranscript() (string, bool) {
	return s.transcripts.Mirror.TryPop()
}

// PopAudio drains one synthesized audio clip.
func (s *Session) PopAudio() ([]byte, bool) {
	return s.sound.TryPop()
}

// Done is closed once the session is shutting down, whether by Close or by a
// fatal transmit error.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Close stops all workers and blocks until they have exited. Safe to call
// more than once.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

package pipeline

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/mkarlsen/voiceloop/internal/model/conversation"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// encodeFrame builds one inbound binary audio message: little-endian uint32
// sample rate followed by float32 samples.
func encodeFrame(sampleRate int, samples []float32) []byte {
	buf := make([]byte, 4+4*len(samples))
	binary.LittleEndian.PutUint32(buf, uint32(sampleRate))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(s))
	}
	return buf
}

func constSamples(value float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = value
	}
	return out
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []transcribeCall
}

type transcribeCall struct {
	samples    []float32
	sampleRate int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, samples []float32, sampleRate int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transcribeCall{samples: samples, sampleRate: sampleRate})
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// scriptedStreamer replays a fixed token sequence for every turn.
type scriptedStreamer struct {
	mu        sync.Mutex
	tokens    []string
	err       error
	histories [][]conversation.Message
}

func (s *scriptedStreamer) Stream(_ context.Context, history []conversation.Message) (*schema.StreamReader[*schema.Message], error) {
	s.mu.Lock()
	snapshot := make([]conversation.Message, len(history))
	copy(snapshot, history)
	s.histories = append(s.histories, snapshot)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	msgs := make([]*schema.Message, len(s.tokens))
	for i, token := range s.tokens {
		msgs[i] = schema.AssistantMessage(token, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (s *scriptedStreamer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}

type fakeSynthesizer struct {
	mu     sync.Mutex
	clip   []byte
	err    error
	inputs []string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	return f.clip, f.err
}

func (f *fakeSynthesizer) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inputs))
	copy(out, f.inputs)
	return out
}

type fakeConn struct {
	mu     sync.Mutex
	texts  []string
	clips  [][]byte
	failed bool
	err    error
}

func (c *fakeConn) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeConn) WriteBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.clips = append(c.clips, data)
	return nil
}

func (c *fakeConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

func (c *fakeConn) clipCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clips)
}

func (c *fakeConn) sawText(text string) bool {
	for _, got := range c.sentTexts() {
		if got == text {
			return true
		}
	}
	return false
}

// drainTokens pops assistant text items until the end-of-message marker.
func drainTokens(t *testing.T, q *Queue[string]) []string {
	t.Helper()
	var out []string
	for {
		token, ok := q.TryPop()
		if !ok {
			t.Fatalf("token stream ended without %q, got %v", EndOfMessage, out)
		}
		if token == EndOfMessage {
			return out
		}
		out = append(out, token)
	}
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, "")
}

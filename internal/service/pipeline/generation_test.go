package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/mkarlsen/voiceloop/internal/model/conversation"
)

func newGenerationWorker(streamer TokenStreamer) *GenerationWorker {
	return &GenerationWorker{
		streamer:  streamer,
		in:        NewQueue[string](),
		tokens:    NewQueue[string](),
		sentences: NewQueue[string](),
		interrupt: &Signal{},
		idle:      time.Millisecond,
	}
}

func TestGenerationUnpunctuatedReply(t *testing.T) {
	streamer := &scriptedStreamer{tokens: []string{"Hello, world."}}
	w := newGenerationWorker(streamer)

	w.respond(context.Background(), "hi")

	tokens := drainTokens(t, w.tokens)
	if got := joinTokens(tokens); got != "Hello, world.\n" {
		t.Fatalf("token stream = %q, want %q", got, "Hello, world.\n")
	}
	if sentence, _ := w.sentences.TryPop(); sentence != "Hello, world." {
		t.Fatalf("sentence = %q, want %q", sentence, "Hello, world.")
	}
	if w.sentences.Len() != 0 {
		t.Fatal("more than one sentence committed")
	}

	history := w.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != conversation.RoleUser || history[0].Content != "hi" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Role != conversation.RoleAssistant || history[1].Content != "Hello, world." {
		t.Fatalf("history[1] = %+v", history[1])
	}
}

func TestGenerationSentenceBoundaries(t *testing.T) {
	streamer := &scriptedStreamer{tokens: []string{"One", ".", " Two", "!"}}
	w := newGenerationWorker(streamer)

	w.respond(context.Background(), "go")

	// Display tokens pass through verbatim, boundary tokens included, with
	// the synthetic trailing newline appended.
	if got := joinTokens(drainTokens(t, w.tokens)); got != "One. Two!\n" {
		t.Fatalf("token stream = %q", got)
	}

	first, _ := w.sentences.TryPop()
	second, _ := w.sentences.TryPop()
	if first != "One." || second != "Two!" {
		t.Fatalf("sentences = %q, %q", first, second)
	}

	history := w.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[1].Content != "One." || history[2].Content != "Two!" {
		t.Fatalf("assistant entries = %q, %q", history[1].Content, history[2].Content)
	}
}

func TestGenerationNewlineTokenIsBoundary(t *testing.T) {
	streamer := &scriptedStreamer{tokens: []string{"Sure thing\n", "Here it is"}}
	w := newGenerationWorker(streamer)

	w.respond(context.Background(), "go")

	first, _ := w.sentences.TryPop()
	second, _ := w.sentences.TryPop()
	if first != "Sure thing" || second != "Here it is" {
		t.Fatalf("sentences = %q, %q", first, second)
	}
}

// raisingStreamer raises the interrupt as a side effect of delivering its
// first token, so the worker observes the barge-in mid reply.
type raisingStreamer struct {
	tokens    []string
	interrupt *Signal
}

func (s *raisingStreamer) Stream(_ context.Context, _ []conversation.Message) (*schema.StreamReader[*schema.Message], error) {
	base := schema.StreamReaderFromArray(s.tokens)
	first := true
	return schema.StreamReaderWithConvert(base, func(token string) (*schema.Message, error) {
		if first {
			first = false
			s.interrupt.Raise()
		}
		return schema.AssistantMessage(token, nil), nil
	}), nil
}

func TestGenerationInterruptDiscardsUncommittedTail(t *testing.T) {
	interrupt := &Signal{}
	streamer := &raisingStreamer{tokens: []string{"Well", " now", "."}, interrupt: interrupt}
	w := newGenerationWorker(streamer)
	w.interrupt = interrupt

	w.respond(context.Background(), "first question")

	// The first token went out before the interrupt was seen; nothing after
	// it did, and the partial text never reached a sentence boundary.
	if got := joinTokens(drainTokens(t, w.tokens)); got != "Well" {
		t.Fatalf("token stream = %q, want %q", got, "Well")
	}
	if w.sentences.Len() != 0 {
		t.Fatal("interrupted turn committed a sentence")
	}
	if history := w.History(); len(history) != 1 {
		t.Fatalf("history length = %d, want only the user entry", len(history))
	}
}

func TestGenerationInterruptClearedOnNextTurn(t *testing.T) {
	streamer := &scriptedStreamer{tokens: []string{"Fine."}}
	w := newGenerationWorker(streamer)

	w.interrupt.Raise()
	w.respond(context.Background(), "second question")

	if got := joinTokens(drainTokens(t, w.tokens)); got != "Fine.\n" {
		t.Fatalf("token stream = %q, stale interrupt not cleared", got)
	}
}

func TestGenerationStreamStartFailure(t *testing.T) {
	streamer := &scriptedStreamer{err: errors.New("model offline")}
	w := newGenerationWorker(streamer)

	w.respond(context.Background(), "hello?")

	if got := drainTokens(t, w.tokens); len(got) != 0 {
		t.Fatalf("failed turn emitted tokens %v", got)
	}
	if history := w.History(); len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
}

// faultyStreamer delivers one good token and then fails the stream.
type faultyStreamer struct{}

func (faultyStreamer) Stream(_ context.Context, _ []conversation.Message) (*schema.StreamReader[*schema.Message], error) {
	base := schema.StreamReaderFromArray([]string{"Partial", ""})
	return schema.StreamReaderWithConvert(base, func(token string) (*schema.Message, error) {
		if token == "" {
			return nil, errors.New("upstream reset")
		}
		return schema.AssistantMessage(token, nil), nil
	}), nil
}

func TestGenerationStreamErrorDiscardsTail(t *testing.T) {
	w := newGenerationWorker(faultyStreamer{})

	w.respond(context.Background(), "hello?")

	if got := joinTokens(drainTokens(t, w.tokens)); got != "Partial" {
		t.Fatalf("token stream = %q", got)
	}
	if w.sentences.Len() != 0 {
		t.Fatal("failed turn committed a sentence")
	}
	if history := w.History(); len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
}

func TestGenerationHistoryAccumulatesAcrossTurns(t *testing.T) {
	streamer := &scriptedStreamer{tokens: []string{"Yes."}}
	w := newGenerationWorker(streamer)

	w.respond(context.Background(), "one")
	w.respond(context.Background(), "two")

	if len(streamer.histories) != 2 {
		t.Fatalf("stream calls = %d, want 2", len(streamer.histories))
	}
	// The second call must carry the full prior exchange.
	second := streamer.histories[1]
	if len(second) != 3 {
		t.Fatalf("second turn history length = %d, want 3", len(second))
	}
	if second[0].Content != "one" || second[1].Content != "Yes." || second[2].Content != "two" {
		t.Fatalf("second turn history = %+v", second)
	}
}

func TestSentenceBoundaryTokens(t *testing.T) {
	boundaries := []string{".", ",", "!", "?", "!?", "?!", ";", "word\n", "\n"}
	for _, token := range boundaries {
		if !isSentenceBoundary(token) {
			t.Fatalf("%q not treated as a boundary", token)
		}
	}
	plain := []string{"Hello", "...", "Mr. ", "x!", " "}
	for _, token := range plain {
		if isSentenceBoundary(token) {
			t.Fatalf("%q wrongly treated as a boundary", token)
		}
	}
}

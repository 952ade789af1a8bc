package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/mkarlsen/voiceloop/internal/model/conversation"
)

// EndOfMessage is the literal marker pushed onto the assistant text stream
// after every turn, including interrupted ones. Clients treat it as the end
// of the current reply, never as content.
const EndOfMessage = "<EOM>"

// TokenStreamer starts one streaming generation over the full conversation so
// far and yields the reply token by token.
type TokenStreamer interface {
	Stream(ctx context.Context, history []conversation.Message) (*schema.StreamReader[*schema.Message], error)
}

// GenerationWorker is the sole owner of the conversation history. It pops user
// inputs, streams a model reply, fans tokens out for display and accumulates
// them into sentences for synthesis, and honors the barge-in interrupt between
// tokens.
type GenerationWorker struct {
	streamer  TokenStreamer
	in        *Queue[string]
	tokens    *Queue[string]
	sentences *Queue[string]
	interrupt *Signal
	idle      time.Duration

	history []conversation.Message
}

// Run polls for user inputs until the context is cancelled.
func (w *GenerationWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		input, ok := w.in.TryPop()
		if !ok {
			idleWait(ctx, w.idle)
			continue
		}
		w.respond(ctx, input)
	}
}

// respond runs one turn: append the user input, stream the reply, commit
// sentence-sized chunks as they complete. An interrupt or stream error
// discards whatever has not reached a sentence boundary yet; committed
// chunks stay in the history.
func (w *GenerationWorker) respond(ctx context.Context, input string) {
	w.history = append(w.history, conversation.User(input))
	w.interrupt.Clear()

	stream, err := w.streamer.Stream(ctx, w.history)
	if err != nil {
		log.Printf("[generation] stream start failed: %v", err)
		w.tokens.Push(EndOfMessage)
		return
	}
	defer stream.Close()

	var sentence, chunk strings.Builder
	flush := func() {
		if line := strings.TrimSpace(chunk.String()); line != "" {
			w.history = append(w.history, conversation.Assistant(line))
		}
		if speakable := strings.TrimSpace(sentence.String()); speakable != "" {
			w.sentences.Push(speakable)
		}
		sentence.Reset()
		chunk.Reset()
	}

	aborted := false
	for {
		if w.interrupt.Raised() {
			aborted = true
			break
		}
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("[generation] stream recv failed: %v", err)
			aborted = true
			break
		}
		if msg == nil || msg.Content == "" {
			continue
		}

		token := msg.Content
		w.tokens.Push(token)
		sentence.WriteString(token)
		chunk.WriteString(token)
		if isSentenceBoundary(token) {
			flush()
		}
	}

	if !aborted {
		// Terminate the reply with a synthetic newline so the tail commits
		// even when the model stops without punctuation.
		w.tokens.Push("\n")
		sentence.WriteString("\n")
		chunk.WriteString("\n")
		flush()
	}
	w.tokens.Push(EndOfMessage)
}

// History returns a snapshot of the conversation so far. Only the worker
// goroutine mutates the history, so the copy is taken for callers that
// outlive the current turn.
func (w *GenerationWorker) History() []conversation.Message {
	out := make([]conversation.Message, len(w.history))
	copy(out, w.history)
	return out
}

var punctuationBoundaries = map[string]struct{}{
	".": {}, ",": {}, "!": {}, "?": {}, "!?": {}, "?!": {}, ";": {},
}

// isSentenceBoundary reports whether a token completes a speakable unit:
// any token containing a newline, or a token that is exactly one of the
// punctuation marks.
func isSentenceBoundary(token string) bool {
	if strings.Contains(token, "\n") {
		return true
	}
	_, ok := punctuationBoundaries[token]
	return ok
}

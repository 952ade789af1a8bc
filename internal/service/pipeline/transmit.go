package pipeline

import (
	"context"
	"log"
	"time"
)

// Conn is the minimal write surface of the client connection. Implementations
// must be safe for use from the transmission goroutine alongside any keepalive
// writer the transport runs.
type Conn interface {
	WriteText(text string) error
	WriteBinary(data []byte) error
}

// Outbound text message prefixes. One leading byte tags the payload so the
// client can route assistant text and user echoes from a single stream.
const (
	TagAssistant = "A"
	TagUser      = "U"
)

// TransmissionWorker serializes the three outbound streams onto one client
// connection. Each cycle forwards at most one item per stream in fixed
// priority order: assistant text, then user echo, then audio.
type TransmissionWorker struct {
	conn   Conn
	tokens *Queue[string]
	echo   *Queue[string]
	sound  *Queue[[]byte]
	idle   time.Duration

	// fatal runs once when a write fails; the connection is unusable and the
	// whole session should come down.
	fatal func()
}

// Run multiplexes until the context is cancelled or a write fails.
func (w *TransmissionWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !w.cycle(ctx) {
			return
		}
	}
}

// cycle forwards one scheduling round and reports whether the worker should
// keep running. The round only idles when no assistant text was pending at
// its start; user echoes and audio forwarded in the same round do not reset
// the back-off.
func (w *TransmissionWorker) cycle(ctx context.Context) bool {
	busy := false

	if token, ok := w.tokens.TryPop(); ok {
		busy = true
		if err := w.conn.WriteText(TagAssistant + token); err != nil {
			w.abort(err)
			return false
		}
	}
	if text, ok := w.echo.TryPop(); ok {
		if err := w.conn.WriteText(TagUser + text); err != nil {
			w.abort(err)
			return false
		}
	}
	if clip, ok := w.sound.TryPop(); ok {
		if err := w.conn.WriteBinary(clip); err != nil {
			w.abort(err)
			return false
		}
	}

	if !busy {
		idleWait(ctx, w.idle)
	}
	return true
}

func (w *TransmissionWorker) abort(err error) {
	log.Printf("[transmit] write failed, closing session: %v", err)
	if w.fatal != nil {
		w.fatal()
	}
}

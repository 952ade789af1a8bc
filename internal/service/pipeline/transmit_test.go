package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTransmissionWorker(conn Conn) (*TransmissionWorker, func() bool) {
	fatal := false
	w := &TransmissionWorker{
		conn:   conn,
		tokens: NewQueue[string](),
		echo:   NewQueue[string](),
		sound:  NewQueue[[]byte](),
		idle:   time.Millisecond,
		fatal:  func() { fatal = true },
	}
	return w, func() bool { return fatal }
}

func TestTransmitPriorityWithinCycle(t *testing.T) {
	conn := &fakeConn{}
	w, _ := newTransmissionWorker(conn)

	w.tokens.Push("Hi")
	w.tokens.Push(" there")
	w.echo.Push("hello")
	w.sound.Push([]byte("clip"))

	if !w.cycle(context.Background()) {
		t.Fatal("cycle aborted unexpectedly")
	}
	texts := conn.sentTexts()
	if len(texts) != 2 || texts[0] != "AHi" || texts[1] != "Uhello" {
		t.Fatalf("first cycle texts = %v", texts)
	}
	if conn.clipCount() != 1 {
		t.Fatalf("first cycle clips = %d, want 1", conn.clipCount())
	}

	// One item per stream per cycle: the second token waits its turn.
	w.cycle(context.Background())
	texts = conn.sentTexts()
	if len(texts) != 3 || texts[2] != "A there" {
		t.Fatalf("second cycle texts = %v", texts)
	}
}

func TestTransmitIdleOnlyWithoutAssistantText(t *testing.T) {
	conn := &fakeConn{}
	w, _ := newTransmissionWorker(conn)

	// Assistant text pending: the cycle must return well under the idle
	// interval even though the other streams are empty.
	w.idle = 200 * time.Millisecond
	w.tokens.Push("token")
	start := time.Now()
	w.cycle(context.Background())
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("busy cycle slept %v", elapsed)
	}

	// Echo-only traffic does not count as busy.
	w.echo.Push("echo")
	start = time.Now()
	w.cycle(context.Background())
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("echo-only cycle skipped the back-off, slept %v", elapsed)
	}
}

func TestTransmitWriteFailureIsFatal(t *testing.T) {
	conn := &fakeConn{err: errors.New("peer gone")}
	w, fatalled := newTransmissionWorker(conn)

	w.tokens.Push("token")
	if w.cycle(context.Background()) {
		t.Fatal("cycle survived a write failure")
	}
	if !fatalled() {
		t.Fatal("write failure did not trigger session teardown")
	}
}

package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Signal is a shared binary flag. The interrupt signal is raised by any new
// user input and cleared only by the generation worker when it starts a turn;
// two near-simultaneous raises collapse into one, which is a known limitation
// of the single-flag design.
type Signal struct {
	set atomic.Bool
}

// Raise sets the flag.
func (s *Signal) Raise() {
	s.set.Store(true)
}

// Clear resets the flag.
func (s *Signal) Clear() {
	s.set.Store(false)
}

// Raised reports whether the flag is set.
func (s *Signal) Raised() bool {
	return s.set.Load()
}

// idleWait sleeps for one back-off interval or until the context is done.
func idleWait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

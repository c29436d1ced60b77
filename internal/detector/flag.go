package detector

import (
	"context"
	"sync"
	"time"
)

// Flag is an edge-triggered event shared between the audio callback and waiters.
// Repeated sets before a clear collapse into one pending signal.
type Flag struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{} // closed while set
}

// NewFlag returns a cleared flag.
func NewFlag() *Flag {
	return &Flag{ch: make(chan struct{})}
}

// Set raises the flag and wakes every waiter. It never blocks.
func (f *Flag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.set = true
	close(f.ch)
}

// Clear lowers the flag so only future sets are observed.
func (f *Flag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return
	}
	f.set = false
	f.ch = make(chan struct{})
}

// IsSet reports the current flag state.
func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Wait blocks until the flag is set, timeout elapses, or ctx is done.
// It returns true only when the flag was observed set.
func (f *Flag) Wait(ctx context.Context, timeout time.Duration) bool {
	f.mu.Lock()
	if f.set {
		f.mu.Unlock()
		return true
	}
	ch := f.ch
	f.mu.Unlock()

	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

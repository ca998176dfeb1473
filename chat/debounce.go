package chat

import (
	"sync"
	"time"
)

// Debouncer runs a function once per key after a quiet period. Re-triggering
// a key resets its timer; cancelling a key discards the pending run.
type Debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewDebouncer() *Debouncer {
	return &Debouncer{timers: make(map[string]*time.Timer)}
}

// Trigger schedules fn to run after d, replacing any pending run for key.
func (b *Debouncer) Trigger(key string, d time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[key]; ok {
		t.Stop()
	}
	b.timers[key] = time.AfterFunc(d, func() {
		b.mu.Lock()
		delete(b.timers, key)
		b.mu.Unlock()
		fn()
	})
}

// Cancel discards the pending run for key, if any.
func (b *Debouncer) Cancel(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[key]; ok {
		t.Stop()
		delete(b.timers, key)
	}
}

// CancelAll discards every pending run.
func (b *Debouncer) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, t := range b.timers {
		t.Stop()
		delete(b.timers, k)
	}
}

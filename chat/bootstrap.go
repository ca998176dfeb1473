package chat

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// BootState is the bootstrap lifecycle.
type BootState int32

const (
	BootNotStarted BootState = iota
	BootRunning
	BootDone
)

func (s BootState) String() string {
	switch s {
	case BootNotStarted:
		return "not-started"
	case BootRunning:
		return "running"
	case BootDone:
		return "done"
	}
	return "unknown"
}

// Bootstrapper runs the initial-data sequence exactly once per authenticated
// session: conversation directory first, then the user directory. The two
// fetches are sequenced on purpose so they never interleave their writes.
// The latch is in-memory only; a process restart starts over.
type Bootstrapper struct {
	mu    sync.Mutex
	state BootState
	dir   *Directory
}

func NewBootstrapper(dir *Directory) *Bootstrapper {
	return &Bootstrapper{dir: dir}
}

// State returns the current lifecycle state.
func (b *Bootstrapper) State() BootState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Run executes the sequence once. Repeat calls in the same session are
// no-ops, whatever the earlier outcome: the latch flips when the run starts,
// fetch errors are logged and absorbed.
func (b *Bootstrapper) Run(ctx context.Context) {
	b.mu.Lock()
	if b.state != BootNotStarted {
		glog.V(5).Infof("chat: bootstrap skipped, state: %s", b.state)
		b.mu.Unlock()
		return
	}
	b.state = BootRunning
	b.mu.Unlock()

	glog.Infof("chat: bootstrap: loading initial data")

	if err := b.dir.Refresh(ctx); err != nil {
		glog.Errorf("chat: bootstrap: conversation refresh failed: %v", err)
	}
	if err := b.dir.LoadUsers(ctx); err != nil {
		glog.Errorf("chat: bootstrap: user directory load failed: %v", err)
	}

	b.mu.Lock()
	b.state = BootDone
	b.mu.Unlock()
}

// Reset re-arms the latch. Called on re-authentication so the new session
// bootstraps exactly once more.
func (b *Bootstrapper) Reset() {
	b.mu.Lock()
	b.state = BootNotStarted
	b.mu.Unlock()
}

package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/vichat/client-go/ws"
)

// Presence is the transient "who is typing" map: peer id to display name.
// Nothing here is persisted.
type Presence struct {
	mu    sync.RWMutex
	names map[int64]string
}

func NewPresence() *Presence {
	return &Presence{names: make(map[int64]string)}
}

// Set records a typing peer.
func (p *Presence) Set(userID int64, username string) {
	p.mu.Lock()
	p.names[userID] = username
	p.mu.Unlock()
}

// Clear drops one typing peer.
func (p *Presence) Clear(userID int64) {
	p.mu.Lock()
	delete(p.names, userID)
	p.mu.Unlock()
}

// Reset drops everything. Called on conversation switch.
func (p *Presence) Reset() {
	p.mu.Lock()
	p.names = make(map[int64]string)
	p.mu.Unlock()
}

// Names returns the display names of currently typing peers, sorted.
func (p *Presence) Names() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.names))
	for _, n := range p.names {
		out = append(out, n)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

// TypingNotifier drives the outbound typing events: typing_start on the
// first keystroke, typing_stop after an idle window. Every keystroke resets
// the idle timer; this is a debounce, not a request timeout.
type TypingNotifier struct {
	mu      sync.Mutex
	tr      Transport
	idle    time.Duration
	limiter *rate.Limiter

	peerID int64
	active bool
	timer  *time.Timer
}

func NewTypingNotifier(tr Transport, idle time.Duration) *TypingNotifier {
	if idle == 0 {
		idle = DefaultTypingIdle
	}
	return &TypingNotifier{
		tr:   tr,
		idle: idle,
		// One start burst per second is plenty; keystroke storms stay local.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Keystroke notes one keystroke towards the given peer.
func (n *TypingNotifier) Keystroke(peerID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.active && n.peerID != peerID {
		n.stopLocked()
	}
	if !n.active {
		if !n.limiter.Allow() {
			return
		}
		if err := n.tr.Emit(ws.EvtTypingStart, &ws.Typing{ReceiverID: peerID}); err != nil {
			glog.V(5).Infof("chat: typing_start dropped: %v", err)
			return
		}
		n.active = true
		n.peerID = peerID
	}

	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.active && n.peerID == peerID {
			n.stopLocked()
		}
	})
}

// Stop ends the typing state immediately. Called on conversation switch and
// on send.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *TypingNotifier) stopLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !n.active {
		return
	}
	if err := n.tr.Emit(ws.EvtTypingStop, &ws.Typing{ReceiverID: n.peerID}); err != nil {
		glog.V(5).Infof("chat: typing_stop dropped: %v", err)
	}
	n.active = false
	n.peerID = 0
}

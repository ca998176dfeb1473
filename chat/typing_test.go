package chat_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vichat/client-go/chat"
	"github.com/vichat/client-go/ws"
)

// fakeTransport records emits and lets tests fire inbound events by hand.
type fakeTransport struct {
	mu       sync.Mutex
	emits    []emittedEvent
	emitErr  error
	handlers map[string][]func(json.RawMessage)
}

type emittedEvent struct {
	event string
	v     interface{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeTransport) Emit(event string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, emittedEvent{event: event, v: v})
	return nil
}

type fakeSub struct{}

func (*fakeSub) Cancel() {}

func (f *fakeTransport) On(event string, fn func(json.RawMessage)) chat.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return &fakeSub{}
}

// fire delivers an inbound event to the registered handlers, as the socket
// dispatch loop would.
func (f *fakeTransport) fire(t *testing.T, event string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	f.mu.Lock()
	fns := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.emits))
	for i, e := range f.emits {
		out[i] = e.event
	}
	return out
}

func TestTypingStartThenIdleStop(t *testing.T) {
	tr := newFakeTransport()
	n := chat.NewTypingNotifier(tr, 50*time.Millisecond)

	n.Keystroke(7)
	assert.Equal(t, []string{ws.EvtTypingStart}, tr.events())

	waitForEvents(t, tr, []string{ws.EvtTypingStart, ws.EvtTypingStop})
}

func TestTypingKeystrokeExtendsIdle(t *testing.T) {
	tr := newFakeTransport()
	n := chat.NewTypingNotifier(tr, 150*time.Millisecond)

	n.Keystroke(7)
	time.Sleep(80 * time.Millisecond)
	n.Keystroke(7)
	time.Sleep(80 * time.Millisecond)

	// First timer was superseded; 160ms in, still typing.
	assert.Equal(t, []string{ws.EvtTypingStart}, tr.events())

	waitForEvents(t, tr, []string{ws.EvtTypingStart, ws.EvtTypingStop})
}

func TestTypingPeerSwitchStopsOld(t *testing.T) {
	tr := newFakeTransport()
	n := chat.NewTypingNotifier(tr, time.Minute)
	defer n.Stop()

	n.Keystroke(7)
	n.Keystroke(9)

	assert.Equal(t, []string{ws.EvtTypingStart, ws.EvtTypingStop, ws.EvtTypingStart}, tr.events())
}

func TestTypingExplicitStop(t *testing.T) {
	tr := newFakeTransport()
	n := chat.NewTypingNotifier(tr, time.Minute)

	n.Stop() // idle stop is a no-op
	assert.Empty(t, tr.events())

	n.Keystroke(7)
	n.Stop()
	n.Stop()
	assert.Equal(t, []string{ws.EvtTypingStart, ws.EvtTypingStop}, tr.events())
}

func TestPresence(t *testing.T) {
	p := chat.NewPresence()
	assert.Empty(t, p.Names())

	p.Set(7, "bob")
	p.Set(9, "alice")
	p.Set(7, "bob")
	assert.Equal(t, []string{"alice", "bob"}, p.Names())

	p.Clear(9)
	assert.Equal(t, []string{"bob"}, p.Names())

	p.Reset()
	assert.Empty(t, p.Names())
}

func waitForEvents(t *testing.T, tr *fakeTransport, want []string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := tr.events()
		if len(got) >= len(want) {
			assert.Equal(t, want, got)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for events %v, got %v", want, tr.events())
}

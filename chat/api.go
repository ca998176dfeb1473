// Package chat is the client-side state layer of a messaging session: the
// ordered message view for the open conversation, the conversation directory,
// read/recall coordination, typing presence, and the one-shot bootstrap.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vichat/client-go/model"
)

// API is the REST surface this package consumes. Implemented by rest.Client.
type API interface {
	Messages(ctx context.Context, peerID int64, limit, offset int) ([]model.Message, error)
	SendMessage(ctx context.Context, req model.CreateMessage) (*model.Message, error)
	MarkRead(ctx context.Context, messageID string) error
	MarkAllRead(ctx context.Context, peerID int64) error
	Conversations(ctx context.Context) ([]model.Conversation, error)
	Users(ctx context.Context, limit, offset int) ([]model.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error)
}

// Subscription cancels one event handler registration.
type Subscription interface {
	Cancel()
}

// Transport is the socket surface this package consumes. Implemented by
// ws.Client via the adapter in transport.go.
type Transport interface {
	Emit(event string, v interface{}) error
	On(event string, fn func(data json.RawMessage)) Subscription
}

// Conf carries the tunables of the session layer. Zero values fall back to
// the defaults below.
type Conf struct {
	// HistoryLimit is the page size of the initial history fetch.
	HistoryLimit int

	// UserPageLimit is the page size of directory and search fetches.
	UserPageLimit int

	// BottomThresholdPx is how close to the bottom the viewport must be for
	// scrolling to count as "read".
	BottomThresholdPx int

	// ReadDebounce collapses rapid viewport events into one batch mark.
	ReadDebounce time.Duration

	// DirectoryDebounce collapses directory refreshes after inbound events.
	DirectoryDebounce time.Duration

	// TypingIdle is the keystroke idle window before typing_stop.
	TypingIdle time.Duration

	// RecallWindow is how long after creation a message stays recallable.
	RecallWindow time.Duration
}

const (
	DefaultHistoryLimit      = 50
	DefaultUserPageLimit     = 20
	DefaultBottomThresholdPx = 50
	DefaultReadDebounce      = 300 * time.Millisecond
	DefaultDirectoryDebounce = 300 * time.Millisecond
	DefaultTypingIdle        = time.Second
	DefaultRecallWindow      = 5 * time.Minute
)

func (c *Conf) withDefaults() Conf {
	out := *c
	if out.HistoryLimit == 0 {
		out.HistoryLimit = DefaultHistoryLimit
	}
	if out.UserPageLimit == 0 {
		out.UserPageLimit = DefaultUserPageLimit
	}
	if out.BottomThresholdPx == 0 {
		out.BottomThresholdPx = DefaultBottomThresholdPx
	}
	if out.ReadDebounce == 0 {
		out.ReadDebounce = DefaultReadDebounce
	}
	if out.DirectoryDebounce == 0 {
		out.DirectoryDebounce = DefaultDirectoryDebounce
	}
	if out.TypingIdle == 0 {
		out.TypingIdle = DefaultTypingIdle
	}
	if out.RecallWindow == 0 {
		out.RecallWindow = DefaultRecallWindow
	}
	return out
}

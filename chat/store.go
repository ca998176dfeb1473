package chat

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/vichat/client-go/model"
)

// MessageStore is the in-memory ordered message view for the currently open
// conversation. Appends preserve arrival order; read and recall transitions
// are one-way. Switching the active peer discards the list wholesale.
//
// Duplicate ids are accepted as distinct entries: the socket already delivers
// each event once, and suppressing here would hide a server-side double-send
// instead of surfacing it.
type MessageStore struct {
	mu     sync.RWMutex
	peerID int64
	msgs   []model.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// ActivePeer returns the open conversation's peer id, 0 when none.
func (s *MessageStore) ActivePeer() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerID
}

// SetActivePeer switches the open conversation and clears the list.
func (s *MessageStore) SetActivePeer(peerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = peerID
	s.msgs = nil
}

// LoadHistory replaces the list with one REST page. The backend returns
// newest-first; the view is oldest-first.
func (s *MessageStore) LoadHistory(peerID int64, page []model.Message) {
	msgs := make([]model.Message, len(page))
	for i, m := range page {
		msgs[len(page)-1-i] = m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peerID != peerID {
		// A stale fetch completed after a peer switch; do not apply.
		glog.V(5).Infof("chat: drop stale history for peer %d, open peer is %d", peerID, s.peerID)
		return
	}
	s.msgs = msgs
}

// AppendIncoming appends a pushed message at the tail.
func (s *MessageStore) AppendIncoming(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

// AppendOutgoingConfirmed appends an own message echoed by the server.
func (s *MessageStore) AppendOutgoingConfirmed(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

// MarkRead flips isRead on every entry with the given id. Idempotent, never
// reversed. Returns whether any entry changed.
func (s *MessageStore) MarkRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed bool
	for i := range s.msgs {
		if s.msgs[i].ID == messageID && !s.msgs[i].IsRead {
			s.msgs[i].IsRead = true
			changed = true
		}
	}
	return changed
}

// MarkAllReadFrom flips isRead on every entry sent by the given peer.
// Returns the number of entries changed.
func (s *MessageStore) MarkAllReadFrom(peerID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for i := range s.msgs {
		if s.msgs[i].SenderID == peerID && !s.msgs[i].IsRead {
			s.msgs[i].IsRead = true
			n++
		}
	}
	return n
}

// MarkRecalled flips isRecalled and records the timestamp. Idempotent, never
// reversed; the first timestamp wins.
func (s *MessageStore) MarkRecalled(messageID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed bool
	for i := range s.msgs {
		if s.msgs[i].ID == messageID && !s.msgs[i].IsRecalled {
			s.msgs[i].IsRecalled = true
			t := at
			s.msgs[i].RecalledAt = &t
			changed = true
		}
	}
	return changed
}

// Messages returns a copy of the current view, oldest first.
func (s *MessageStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of entries in the view.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/vichat/client-go/model"
	"github.com/vichat/client-go/ws"
)

// ErrNotRecallable means the message failed the recall eligibility check:
// not the user's own, already read, already recalled, or too old.
var ErrNotRecallable = errors.New("chat: message not recallable")

// ErrNoConversation means an operation needs an open conversation.
var ErrNoConversation = errors.New("chat: no open conversation")

const directoryKey = "directory"

// Session wires one authenticated chat session together: it routes socket
// events into the message store, directory, read marker and presence, and
// drives the peer-selection and send paths.
type Session struct {
	api  API
	tr   Transport
	self model.User
	conf Conf

	Store    *MessageStore
	Dir      *Directory
	Marker   *ReadMarker
	Boot     *Bootstrapper
	Presence *Presence
	Typing   *TypingNotifier

	deb *Debouncer

	mu   sync.Mutex
	subs []Subscription
}

// NewSession builds the session layer for the given identity. The transport
// is not connected here; callers connect it and then Start the session.
func NewSession(api API, tr Transport, self model.User, conf Conf) *Session {
	conf = conf.withDefaults()

	s := &Session{
		api:      api,
		tr:       tr,
		self:     self,
		conf:     conf,
		Store:    NewMessageStore(),
		Presence: NewPresence(),
		Typing:   NewTypingNotifier(tr, conf.TypingIdle),
		deb:      NewDebouncer(),
	}
	s.Dir = NewDirectory(api, conf.UserPageLimit)
	s.Boot = NewBootstrapper(s.Dir)
	s.Marker = NewReadMarker(api, s.Store, conf, s.batchConfirmed)
	return s
}

// Self returns the session identity.
func (s *Session) Self() model.User {
	return s.self
}

// Start runs the one-shot bootstrap and binds the socket handlers.
func (s *Session) Start(ctx context.Context) {
	s.Boot.Run(ctx)
	s.bind()
}

// Close cancels the socket handler registrations and pending timers.
func (s *Session) Close() {
	s.Typing.Stop()
	s.deb.CancelAll()

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

func (s *Session) bind() {
	subs := []Subscription{
		s.tr.On(ws.EvtNewMessage, s.handleNewMessage),
		s.tr.On(ws.EvtMessageSent, s.handleMessageSent),
		s.tr.On(ws.EvtMessageMarkedRead, s.handleMarkedRead),
		s.tr.On(ws.EvtMessageRecalled, s.handleRecalled),
		s.tr.On(ws.EvtUserTyping, s.handleTyping),
		s.tr.On(ws.EvtUserStoppedTyping, s.handleStoppedTyping),
		s.tr.On(ws.EvtJoinedConv, s.handleJoined),
		s.tr.On(ws.EvtLeftConv, s.handleLeft),
		s.tr.On(ws.EvtError, s.handleError),
	}

	s.mu.Lock()
	s.subs = append(s.subs, subs...)
	s.mu.Unlock()
}

// SelectPeer opens the conversation with the given peer: leaves the old
// room, discards the old view and its batch memo, loads history, marks it
// read and joins the new room.
func (s *Session) SelectPeer(ctx context.Context, peerID int64) error {
	old := s.Store.ActivePeer()
	if old != 0 && old != peerID {
		s.Marker.Reset(old)
		s.Typing.Stop()
		s.Presence.Reset()
		// Best effort; a dead socket must not block the switch.
		_ = s.tr.Emit(ws.EvtLeaveConversation, &ws.JoinConversation{OtherUserID: old})
	}

	s.Store.SetActivePeer(peerID)

	page, err := s.api.Messages(ctx, peerID, s.conf.HistoryLimit, 0)
	if err != nil {
		return err
	}
	s.Store.LoadHistory(peerID, page)

	s.Marker.EnsureBatchMarked(ctx, peerID)

	if err := s.tr.Emit(ws.EvtJoinConversation, &ws.JoinConversation{OtherUserID: peerID}); err != nil {
		glog.Errorf("chat: join_conversation for peer %d dropped: %v", peerID, err)
	}
	return nil
}

// Send sends a text message to the open conversation over the socket; the
// message lands in the store on the message_sent echo. With no live socket
// it falls back to the REST path.
func (s *Session) Send(ctx context.Context, content string) error {
	peerID := s.Store.ActivePeer()
	if peerID == 0 {
		return ErrNoConversation
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.Typing.Stop()

	req := model.CreateMessage{Content: content, Kind: model.MsgKindText, ReceiverID: peerID}
	if err := s.tr.Emit(ws.EvtSendMessage, &req); err != nil {
		glog.V(5).Infof("chat: socket send failed, using REST fallback: %v", err)
		m, rerr := s.api.SendMessage(ctx, req)
		if rerr != nil {
			return rerr
		}
		s.Store.AppendOutgoingConfirmed(*m)
	}
	return nil
}

// Recall requests the recall of an own unread message within the recall
// window. The store flips only on the server's message_recalled echo, so the
// initiator sees the recall after one round trip.
func (s *Session) Recall(m *model.Message) error {
	if !s.Marker.CanRecall(m, s.self.ID) {
		return ErrNotRecallable
	}
	return s.tr.Emit(ws.EvtRecallMessage, &ws.MessageRef{MessageID: m.ID})
}

// batchConfirmed is the ReadMarker hook: a confirmed batch zeroes the local
// unread count and schedules a directory refresh.
func (s *Session) batchConfirmed(peerID int64) {
	s.Dir.ZeroUnread(peerID)
	s.refreshDirectorySoon()
}

func (s *Session) refreshDirectorySoon() {
	s.deb.Trigger(directoryKey, s.conf.DirectoryDebounce, func() {
		if err := s.Dir.Refresh(context.Background()); err != nil {
			glog.Errorf("chat: directory refresh failed: %v", err)
		}
	})
}

func (s *Session) handleNewMessage(data json.RawMessage) {
	var m model.Message
	if err := json.Unmarshal(data, &m); err != nil {
		glog.Errorf("chat: bad new_message payload: %v", err)
		return
	}

	open := s.Store.ActivePeer()
	if open != 0 && m.Between(s.self.ID, open) {
		s.Store.AppendIncoming(m)
		if m.SenderID == open {
			s.Marker.MessageReceived(context.Background(), &m)
		}
	}

	s.refreshDirectorySoon()
}

func (s *Session) handleMessageSent(data json.RawMessage) {
	var m model.Message
	if err := json.Unmarshal(data, &m); err != nil {
		glog.Errorf("chat: bad message_sent payload: %v", err)
		return
	}
	open := s.Store.ActivePeer()
	if open != 0 && m.Between(s.self.ID, open) {
		s.Store.AppendOutgoingConfirmed(m)
	}
}

func (s *Session) handleMarkedRead(data json.RawMessage) {
	var ref ws.MessageRef
	if err := json.Unmarshal(data, &ref); err != nil {
		glog.Errorf("chat: bad message_marked_read payload: %v", err)
		return
	}
	s.Store.MarkRead(ref.MessageID)
}

func (s *Session) handleRecalled(data json.RawMessage) {
	var ev ws.MessageRecalled
	if err := json.Unmarshal(data, &ev); err != nil {
		glog.Errorf("chat: bad message_recalled payload: %v", err)
		return
	}
	at := time.Now()
	if ev.RecalledAt != nil {
		at = *ev.RecalledAt
	}
	s.Store.MarkRecalled(ev.MessageID, at)
}

func (s *Session) handleTyping(data json.RawMessage) {
	var ev ws.UserTyping
	if err := json.Unmarshal(data, &ev); err != nil {
		glog.Errorf("chat: bad user_typing payload: %v", err)
		return
	}
	s.Presence.Set(ev.UserID, ev.Username)
}

func (s *Session) handleStoppedTyping(data json.RawMessage) {
	var ev ws.UserTyping
	if err := json.Unmarshal(data, &ev); err != nil {
		glog.Errorf("chat: bad user_stopped_typing payload: %v", err)
		return
	}
	s.Presence.Clear(ev.UserID)
}

func (s *Session) handleJoined(data json.RawMessage) {
	var ev ws.JoinedConversation
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	glog.V(5).Infof("chat: joined room %s with peer %d", ev.RoomID, ev.OtherUserID)
}

func (s *Session) handleLeft(data json.RawMessage) {
	var ev ws.JoinedConversation
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	glog.V(5).Infof("chat: left room %s with peer %d", ev.RoomID, ev.OtherUserID)
}

func (s *Session) handleError(data json.RawMessage) {
	var ev ws.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		glog.Errorf("chat: bad error payload: %s", string(data))
		return
	}
	glog.Errorf("chat: server error event: %s", ev.Message)
}

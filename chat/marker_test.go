package chat_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/vichat/client-go/chat"
	"github.com/vichat/client-go/chat/mock"
	"github.com/vichat/client-go/model"
)

func seededStore(peerID int64) *chat.MessageStore {
	s := chat.NewMessageStore()
	s.SetActivePeer(peerID)
	s.AppendIncoming(msg("a", peerID, 1))
	s.AppendIncoming(msg("b", peerID, 1))
	s.AppendOutgoingConfirmed(msg("c", 1, peerID))
	return s
}

func TestBatchMarkOncePerPeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	store := seededStore(7)

	var confirmed int64
	m := chat.NewReadMarker(api, store, chat.Conf{}, func(peerID int64) {
		assert.EqualValues(t, 7, peerID)
		atomic.AddInt64(&confirmed, 1)
	})

	api.EXPECT().MarkAllRead(gomock.Any(), int64(7)).Return(nil).Times(1)

	m.EnsureBatchMarked(context.Background(), 7)
	m.EnsureBatchMarked(context.Background(), 7) // memoized, no second call

	for _, mm := range store.Messages()[:2] {
		assert.True(t, mm.IsRead)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&confirmed))
}

func TestBatchMarkErrorKeepsLocalState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	store := seededStore(7)

	var confirmed int64
	m := chat.NewReadMarker(api, store, chat.Conf{}, func(int64) { atomic.AddInt64(&confirmed, 1) })

	api.EXPECT().MarkAllRead(gomock.Any(), int64(7)).Return(errors.New("backend down"))
	m.EnsureBatchMarked(context.Background(), 7)

	// Optimistic local flip stands, confirmation hook does not fire.
	assert.True(t, store.Messages()[0].IsRead)
	assert.Zero(t, atomic.LoadInt64(&confirmed))
}

func TestResetReArmsBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	store := seededStore(7)
	m := chat.NewReadMarker(api, store, chat.Conf{}, nil)

	api.EXPECT().MarkAllRead(gomock.Any(), int64(7)).Return(nil).Times(2)

	m.EnsureBatchMarked(context.Background(), 7)
	m.Reset(7)
	m.EnsureBatchMarked(context.Background(), 7)
}

func TestViewportDebounce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	store := seededStore(7)
	m := chat.NewReadMarker(api, store, chat.Conf{ReadDebounce: 20 * time.Millisecond}, nil)

	done := make(chan struct{}, 1)
	api.EXPECT().MarkAllRead(gomock.Any(), int64(7)).DoAndReturn(func(context.Context, int64) error {
		done <- struct{}{}
		return nil
	}).Times(1)

	// Far from the bottom: never counts as read.
	m.ViewportNotify(7, 400)

	// A scroll storm near the bottom collapses to one batch call.
	for i := 0; i < 5; i++ {
		m.ViewportNotify(7, 10)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced batch mark never fired")
	}
	time.Sleep(50 * time.Millisecond) // would surface a second, unexpected call
}

func TestMessageReceivedBypassesMemo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	api := mock.NewMockAPI(ctrl)
	store := seededStore(7)
	m := chat.NewReadMarker(api, store, chat.Conf{}, nil)

	api.EXPECT().MarkAllRead(gomock.Any(), int64(7)).Return(nil)
	m.EnsureBatchMarked(context.Background(), 7)

	// The per-message path still fires after the batch memo is set.
	in := msg("d", 7, 1)
	store.AppendIncoming(in)
	api.EXPECT().MarkRead(gomock.Any(), "d").Return(nil)
	m.MessageReceived(context.Background(), &in)

	msgs := store.Messages()
	assert.True(t, msgs[len(msgs)-1].IsRead)
}

func TestCanRecall(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	m := chat.NewReadMarker(mock.NewMockAPI(ctrl), chat.NewMessageStore(), chat.Conf{}, nil)

	const selfID = 1
	base := model.Message{ID: "a", SenderID: selfID, ReceiverID: 7}

	fresh := base
	fresh.CreatedAt = time.Now().Add(-2 * time.Minute)
	assert.True(t, m.CanRecall(&fresh, selfID))

	old := base
	old.CreatedAt = time.Now().Add(-10 * time.Minute)
	assert.False(t, m.CanRecall(&old, selfID))

	read := fresh
	read.IsRead = true
	assert.False(t, m.CanRecall(&read, selfID))

	recalled := fresh
	recalled.IsRecalled = true
	assert.False(t, m.CanRecall(&recalled, selfID))

	theirs := fresh
	theirs.SenderID, theirs.ReceiverID = 7, selfID
	assert.False(t, m.CanRecall(&theirs, selfID))
}

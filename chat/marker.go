package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/vichat/client-go/model"
)

// ReadMarker decides when messages get marked read and whether a message is
// still recallable.
//
// Batch path: one PUT per peer, memoized until the peer selection changes,
// triggered by opening a conversation or by the viewport reaching the bottom
// (debounced). Per-message path: an inbound message from the open peer is
// marked immediately and is not gated by the memo; the server mutation is
// idempotent so the overlap is tolerated.
//
// All marks are optimistic: the local flag flips regardless of the REST
// outcome, failures are logged and absorbed.
type ReadMarker struct {
	mu    sync.Mutex
	api   API
	store *MessageStore
	conf  Conf
	deb   *Debouncer

	// peers whose batch call already fired this selection.
	marked map[int64]bool

	// onBatchConfirmed runs after a successful batch round trip.
	onBatchConfirmed func(peerID int64)

	now func() time.Time
}

func NewReadMarker(api API, store *MessageStore, conf Conf, onBatchConfirmed func(peerID int64)) *ReadMarker {
	return &ReadMarker{
		api:              api,
		store:            store,
		conf:             conf.withDefaults(),
		deb:              NewDebouncer(),
		marked:           make(map[int64]bool),
		onBatchConfirmed: onBatchConfirmed,
		now:              time.Now,
	}
}

func batchKey(peerID int64) string {
	return "readmark/" + strconv.FormatInt(peerID, 10)
}

// EnsureBatchMarked fires the batch mark-as-read for the peer at most once
// per selection. The local flags flip either way.
func (r *ReadMarker) EnsureBatchMarked(ctx context.Context, peerID int64) {
	r.mu.Lock()
	if r.marked[peerID] {
		r.mu.Unlock()
		glog.V(5).Infof("chat: peer %d already batch-marked", peerID)
		return
	}
	r.marked[peerID] = true
	r.mu.Unlock()

	n := r.store.MarkAllReadFrom(peerID)
	glog.V(5).Infof("chat: batch mark peer %d, %d local messages flipped", peerID, n)

	if err := r.api.MarkAllRead(ctx, peerID); err != nil {
		// Optimistic local state is kept.
		glog.Errorf("chat: batch mark-as-read for peer %d failed: %v", peerID, err)
		return
	}
	if r.onBatchConfirmed != nil {
		r.onBatchConfirmed(peerID)
	}
}

// ViewportNotify reports the viewport's distance from the bottom of the
// message list. Close enough to the bottom counts as "read", debounced to
// collapse scroll storms.
func (r *ReadMarker) ViewportNotify(peerID int64, distanceFromBottomPx int) {
	if distanceFromBottomPx >= r.conf.BottomThresholdPx {
		return
	}
	r.deb.Trigger(batchKey(peerID), r.conf.ReadDebounce, func() {
		r.EnsureBatchMarked(context.Background(), peerID)
	})
}

// MessageReceived marks one inbound message read immediately, independent of
// the batch memo and of scroll position.
func (r *ReadMarker) MessageReceived(ctx context.Context, m *model.Message) {
	r.store.MarkRead(m.ID)
	if err := r.api.MarkRead(ctx, m.ID); err != nil {
		glog.Errorf("chat: mark-as-read for message %s failed: %v", m.ID, err)
	}
}

// Reset discards the peer's batch memo and any pending debounced mark.
// Called on peer switch; in-flight calls for the old peer may complete but
// their results no longer apply.
func (r *ReadMarker) Reset(peerID int64) {
	r.deb.Cancel(batchKey(peerID))
	r.mu.Lock()
	delete(r.marked, peerID)
	r.mu.Unlock()
}

// CanRecall reports whether the user may recall the message: own message,
// still unread, not recalled, and younger than the recall window.
func (r *ReadMarker) CanRecall(m *model.Message, selfID int64) bool {
	if m.SenderID != selfID || m.IsRead || m.IsRecalled {
		return false
	}
	return r.now().Sub(m.CreatedAt) < r.conf.RecallWindow
}

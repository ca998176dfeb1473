package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/vichat/client-go/model"
)

// Directory is the conversation list plus the user directory backing the
// "all users" tab. Conversation refresh is always a full replace; the
// inefficiency buys consistency over incremental merges.
type Directory struct {
	mu            sync.RWMutex
	api           API
	userPageLimit int

	conversations []model.Conversation
	users         []model.User
}

func NewDirectory(api API, userPageLimit int) *Directory {
	if userPageLimit == 0 {
		userPageLimit = DefaultUserPageLimit
	}
	return &Directory{api: api, userPageLimit: userPageLimit}
}

// Refresh replaces the conversation list from REST.
func (d *Directory) Refresh(ctx context.Context) error {
	convs, err := d.api.Conversations(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.conversations = convs
	d.mu.Unlock()
	glog.V(5).Infof("chat: directory refreshed, %d conversations", len(convs))
	return nil
}

// LoadUsers replaces the user directory with the first page.
func (d *Directory) LoadUsers(ctx context.Context) error {
	users, err := d.api.Users(ctx, d.userPageLimit, 0)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
	glog.V(5).Infof("chat: user directory loaded, %d users", len(users))
	return nil
}

// Search queries the full user directory by free text. A blank query and a
// failed query both fall back to the unfiltered user list.
func (d *Directory) Search(ctx context.Context, query string) ([]model.User, error) {
	if strings.TrimSpace(query) == "" {
		if err := d.LoadUsers(ctx); err != nil {
			return nil, err
		}
		return d.Users(), nil
	}

	users, err := d.api.SearchUsers(ctx, query, d.userPageLimit)
	if err != nil {
		glog.Errorf("chat: user search %q failed, falling back to full list: %v", query, err)
		if lerr := d.LoadUsers(ctx); lerr != nil {
			return nil, lerr
		}
		return d.Users(), nil
	}

	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
	return users, nil
}

// FilterByName filters the conversation list client-side by case-insensitive
// substring of the peer's display name.
func (d *Directory) FilterByName(query string) []model.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))

	d.mu.RLock()
	defer d.mu.RUnlock()
	if q == "" {
		out := make([]model.Conversation, len(d.conversations))
		copy(out, d.conversations)
		return out
	}
	var out []model.Conversation
	for _, c := range d.conversations {
		if strings.Contains(strings.ToLower(c.User.Username), q) {
			out = append(out, c)
		}
	}
	return out
}

// ZeroUnread zeroes the unread count of one conversation locally. Called when
// a batch mark-as-read round trip confirms.
func (d *Directory) ZeroUnread(peerID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].OtherUserID == peerID {
			d.conversations[i].UnreadCount = 0
		}
	}
}

// Conversations returns a copy of the conversation list.
func (d *Directory) Conversations() []model.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Conversation, len(d.conversations))
	copy(out, d.conversations)
	return out
}

// Users returns a copy of the user directory.
func (d *Directory) Users() []model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.User, len(d.users))
	copy(out, d.users)
	return out
}

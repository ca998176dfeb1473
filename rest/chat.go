package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vichat/client-go/model"
)

// SendMessage posts a message over REST. The realtime path goes over the
// socket; this is the fallback.
func (c *Client) SendMessage(ctx context.Context, req model.CreateMessage) (*model.Message, error) {
	var m model.Message
	if err := c.do(ctx, http.MethodPost, "/chat/messages", nil, &req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Messages returns one page of history with the given peer, newest first, as
// the backend orders it.
func (c *Client) Messages(ctx context.Context, peerID int64, limit, offset int) ([]model.Message, error) {
	var out []model.Message
	path := "/chat/messages/" + strconv.FormatInt(peerID, 10)
	if err := c.do(ctx, http.MethodGet, path, pageQuery(limit, offset), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadMessages returns all unread messages for the session user.
func (c *Client) UnreadMessages(ctx context.Context) ([]model.Message, error) {
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/chat/messages/unread", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks one message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/chat/messages/"+messageID+"/read", nil, nil, nil)
}

// MarkAllRead marks every message from the given peer as read.
func (c *Client) MarkAllRead(ctx context.Context, peerID int64) error {
	path := "/chat/messages/read/" + strconv.FormatInt(peerID, 10)
	return c.do(ctx, http.MethodPut, path, nil, nil, nil)
}

// DeleteMessage deletes one message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/chat/messages/"+messageID, nil, nil, nil)
}

// RecallMessage recalls one message over REST.
func (c *Client) RecallMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/chat/messages/"+messageID+"/recall", nil, nil, nil)
}

// Conversations returns the full recent-conversation list.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/chat/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users returns one page of the user directory, excluding the session user.
func (c *Client) Users(ctx context.Context, limit, offset int) ([]model.User, error) {
	var out []model.User
	if err := c.do(ctx, http.MethodGet, "/users", pageQuery(limit, offset), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchUsers queries the user directory by free text.
func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	var out []model.User
	if err := c.do(ctx, http.MethodGet, "/users/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

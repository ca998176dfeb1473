// Package model holds the wire types shared by the REST and websocket
// surfaces of the vichat backend.
package model

import "time"

// Message kinds known to the backend. Anything else is passed through as-is.
const (
	MsgKindText = "text"
)

// UserSummary is the denormalized sender/receiver block embedded in messages
// and conversations.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// User is a full directory entry.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Message is a single chat message as the backend serializes it.
// isRead and isRecalled only ever flip from false to true.
type Message struct {
	ID         string       `json:"id"`
	Content    string       `json:"content"`
	Kind       string       `json:"type"`
	SenderID   int64        `json:"senderId"`
	ReceiverID int64        `json:"receiverId"`
	IsRead     bool         `json:"isRead"`
	IsRecalled bool         `json:"isRecalled"`
	RecalledAt *time.Time   `json:"recalledAt,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	Sender     *UserSummary `json:"sender,omitempty"`
	Receiver   *UserSummary `json:"receiver,omitempty"`
}

// DisplayContent returns the renderable content. A recalled message keeps its
// id and sender but its content is withheld.
func (m *Message) DisplayContent() string {
	if m.IsRecalled {
		return ""
	}
	return m.Content
}

// Between reports whether the message belongs to the conversation between
// `self` and `peer`, in either direction.
func (m *Message) Between(self, peer int64) bool {
	return (m.SenderID == peer && m.ReceiverID == self) ||
		(m.SenderID == self && m.ReceiverID == peer)
}

// CreateMessage is the request body for sending a message, over REST or the
// socket.
type CreateMessage struct {
	Content    string `json:"content"`
	Kind       string `json:"type,omitempty"`
	ReceiverID int64  `json:"receiverId"`
}

// Conversation is a directory entry. Its identity is the other participant.
type Conversation struct {
	OtherUserID     int64       `json:"otherUserId"`
	LastMessageTime time.Time   `json:"lastMessageTime"`
	UnreadCount     int         `json:"unreadCount"`
	User            UserSummary `json:"user"`
}

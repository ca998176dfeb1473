package ws

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EvtSendMessage       = "send_message"
	EvtJoinConversation  = "join_conversation"
	EvtLeaveConversation = "leave_conversation"
	EvtTypingStart       = "typing_start"
	EvtTypingStop        = "typing_stop"
	EvtMarkAsRead        = "mark_as_read"
	EvtRecallMessage     = "recall_message"
)

// Server to client events.
const (
	EvtNewMessage        = "new_message"
	EvtMessageSent       = "message_sent"
	EvtJoinedConv        = "joined_conversation"
	EvtLeftConv          = "left_conversation"
	EvtUserTyping        = "user_typing"
	EvtUserStoppedTyping = "user_stopped_typing"
	EvtMessageMarkedRead = "message_marked_read"
	EvtMessageRecalled   = "message_recalled"
	EvtError             = "error"
)

// Envelope is the framing for every message on the socket, in both
// directions: an event name plus its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinConversation is the payload for join/leave_conversation.
type JoinConversation struct {
	OtherUserID int64 `json:"otherUserId"`
}

// JoinedConversation is the payload for joined/left_conversation.
type JoinedConversation struct {
	RoomID      string `json:"roomId"`
	OtherUserID int64  `json:"otherUserId"`
}

// Typing is the payload for typing_start/typing_stop.
type Typing struct {
	ReceiverID int64 `json:"receiverId"`
}

// UserTyping is the payload for user_typing/user_stopped_typing.
type UserTyping struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// MessageRef is the payload for mark_as_read, recall_message and
// message_marked_read.
type MessageRef struct {
	MessageID string `json:"messageId"`
}

// MessageRecalled is the payload for message_recalled. RecalledAt is optional;
// consumers fall back to their local clock when the server omits it.
type MessageRecalled struct {
	MessageID  string     `json:"messageId"`
	RecalledAt *time.Time `json:"recalledAt,omitempty"`
}

// ErrorEvent is the payload for error.
type ErrorEvent struct {
	Message string `json:"message"`
}

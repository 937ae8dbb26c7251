package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin  = "joinConversation"
	InboundTypeLeave = "leaveConversation"
	InboundTypeSend  = "sendMessage"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventJoinedConversation = "joinedConversation"
	EventLeftConversation   = "leftConversation"
	EventNewMessage         = "newMessage"
	EventMessageDeleted     = "messageDeleted"
)

// ConversationRef names a conversation. Join and leave also accept a bare JSON string.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// User is the public projection of a user.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is a persisted message as delivered to clients.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         User      `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

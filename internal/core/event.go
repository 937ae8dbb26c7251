package core

import "github.com/deltadefenders/farmchat-server/internal/service/messages"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinedConversation acknowledges a join to the joining client only.
	EventJoinedConversation EventKind = iota
	// EventLeftConversation acknowledges a leave to the leaving client only.
	EventLeftConversation
	// EventNewMessage carries a persisted message to every client in the room.
	EventNewMessage
	// EventMessageDeleted tells the room a message was removed by its sender.
	EventMessageDeleted
	// EventError notifies a single client about a failed command.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventJoinedConversation:
		return "joinedConversation"
	case EventLeftConversation:
		return "leftConversation"
	case EventNewMessage:
		return "newMessage"
	case EventMessageDeleted:
		return "messageDeleted"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind           EventKind
	ConversationID string
	Message        *messages.Message
	Error          *CoreError
}

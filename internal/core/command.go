package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinConversation subscribes the client to a conversation room.
	CommandJoinConversation CommandKind = iota
	// CommandLeaveConversation unsubscribes the client from a conversation room.
	CommandLeaveConversation
	// CommandSendMessage persists a message and fans it out to the room.
	CommandSendMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	ConversationID string
	Content        string
}

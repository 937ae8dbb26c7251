package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned (wrapped) when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// Role is a marketplace role carried by every user.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleBuyer  Role = "buyer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleBuyer
}

// User represents a user in the system.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// UserSummary is the minimal projection of a user exposed to other users.
type UserSummary struct {
	ID    string
	Name  string
	Email string
}

// Summary projects the user down to its public fields.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Conversation represents a persisted conversation between two or more users.
type Conversation struct {
	ID             string
	ParticipantIDs []string
	LastMessageID  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasParticipant reports whether userID is part of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	// Seq is the insertion sequence assigned by the store.
	Seq int64
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. Email must be unique.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserSummaries resolves the given IDs. Unknown IDs are absent from the result.
	GetUserSummaries(ctx context.Context, ids []string) (map[string]UserSummary, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation persists a conversation and its participants.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation with its participant IDs.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversationsForUser lists conversations the user participates in,
	// most recently updated first.
	ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error)

	// SetLastMessage points the conversation at messageID (nil clears it).
	SetLastMessage(ctx context.Context, conversationID string, messageID *string, updatedAt time.Time) error

	// RefreshLastMessage atomically points the conversation at its newest
	// message, or clears the pointer when no message is left.
	RefreshLastMessage(ctx context.Context, conversationID string, updatedAt time.Time) error

	// ListStaleConversations returns IDs of conversations whose last message
	// pointer does not reference their newest message.
	ListStaleConversations(ctx context.Context) ([]string, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its Seq.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListMessages returns every message of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// DeleteMessage permanently removes a message.
	DeleteMessage(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

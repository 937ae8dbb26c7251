package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/service"
	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
	"github.com/deltadefenders/farmchat-server/internal/store"
)

// DefaultMaxContentLength bounds message content when no limit is configured.
const DefaultMaxContentLength = 4000

// Common errors for message operations.
var (
	ErrEmptyContent    = service.NewError(service.ErrValidation, "message content must not be empty")
	ErrContentTooLong  = service.NewError(service.ErrValidation, "message content is too long")
	ErrMessageNotFound = service.NewError(service.ErrNotFound, "message not found")
	ErrNotSender       = service.NewError(service.ErrForbidden, "only the sender can delete this message")
)

// Message is a message with its sender resolved to a summary.
type Message struct {
	ID             string
	ConversationID string
	Sender         store.UserSummary
	Content        string
	CreatedAt      time.Time
}

// Conversations is the slice of the conversation service that messages depend on.
type Conversations interface {
	Get(ctx context.Context, id string) (*store.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID, messageID string) (*conversations.Conversation, error)
	RecomputeLastMessage(ctx context.Context, conversationID string) error
}

// Store is the persistence the service needs.
type Store interface {
	store.MessageStore
	store.UserStore
}

// Service provides message business logic.
type Service struct {
	store         Store
	conversations Conversations
	maxLength     int
	log           *zerolog.Logger
	now           func() time.Time
}

// New creates a new message service. maxLength <= 0 selects DefaultMaxContentLength.
func New(st Store, convs Conversations, maxLength int, logger *zerolog.Logger) *Service {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store:         st,
		conversations: convs,
		maxLength:     maxLength,
		log:           logger,
		now:           time.Now,
	}
}

// Create persists a message and then moves the conversation's last message pointer to it.
// Once the message is saved the call succeeds: a failed pointer update or sender
// lookup is logged and tolerated. Store work is detached from ctx cancellation.
func (s *Service) Create(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	ctx = context.WithoutCancel(ctx)

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, ErrContentTooLong
	}
	if !conv.HasParticipant(senderID) {
		return nil, conversations.ErrNotParticipant
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	if _, err := s.conversations.UpdateLastMessage(ctx, conv.ID, msg.ID); err != nil {
		s.log.Warn().Err(err).
			Str("conversation_id", conv.ID).
			Str("message_id", msg.ID).
			Msg("last message pointer left stale")
	}

	summaries, err := s.store.GetUserSummaries(ctx, []string{senderID})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", senderID).Str("message_id", msg.ID).Msg("resolve sender of new message")
	}
	return withSender(msg, summaries), nil
}

// ListByConversation returns the conversation history, oldest first.
// Unknown conversations fail with ErrConversationNotFound, as in Create.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]*Message, error) {
	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	senders := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senders = append(senders, m.SenderID)
		}
	}
	summaries, err := s.store.GetUserSummaries(ctx, senders)
	if err != nil {
		return nil, fmt.Errorf("resolve senders: %w", err)
	}

	result := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, withSender(m, summaries))
	}
	return result, nil
}

// Delete removes a message on behalf of its sender and returns what was removed.
// If the message was the conversation's last message, the pointer is recomputed.
func (s *Service) Delete(ctx context.Context, messageID, requestingUserID string) (*Message, error) {
	ctx = context.WithoutCancel(ctx)

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.SenderID != requestingUserID {
		return nil, ErrNotSender
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("delete message: %w", err)
	}

	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("conversation lookup after delete failed")
	} else if conv.LastMessageID != nil && *conv.LastMessageID == messageID {
		if err := s.conversations.RecomputeLastMessage(ctx, conv.ID); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("last message pointer left dangling")
		}
	}

	s.log.Info().Str("message_id", messageID).Str("conversation_id", msg.ConversationID).Msg("message deleted")

	summaries, err := s.store.GetUserSummaries(ctx, []string{msg.SenderID})
	if err != nil {
		s.log.Debug().Err(err).Str("user_id", msg.SenderID).Msg("resolve sender of deleted message")
	}
	return withSender(msg, summaries), nil
}

func withSender(msg *store.Message, summaries map[string]store.UserSummary) *Message {
	sender, ok := summaries[msg.SenderID]
	if !ok {
		sender = store.UserSummary{ID: msg.SenderID}
	}
	return &Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         sender,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}
}

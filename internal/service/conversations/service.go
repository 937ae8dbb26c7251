package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/service"
	"github.com/deltadefenders/farmchat-server/internal/store"
)

// MinParticipants is the smallest participant set a conversation may have.
const MinParticipants = 2

// Common errors for conversation operations.
var (
	ErrTooFewParticipants   = service.NewError(service.ErrValidation, "a conversation needs at least 2 distinct participants")
	ErrUnknownParticipant   = service.NewError(service.ErrValidation, "participant does not exist")
	ErrConversationNotFound = service.NewError(service.ErrNotFound, "conversation not found")
	ErrNotParticipant       = service.NewError(service.ErrForbidden, "not a participant in this conversation")
)

// Conversation is a conversation with its participants resolved to summaries.
type Conversation struct {
	ID            string
	Participants  []store.UserSummary
	LastMessageID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store is the persistence the service needs.
type Store interface {
	store.ConversationStore
	store.MessageStore
	store.UserStore
}

// Service provides conversation business logic.
type Service struct {
	store Store
	log   *zerolog.Logger
	now   func() time.Time
}

// New creates a new conversation service.
func New(st Store, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store: st,
		log:   logger,
		now:   time.Now,
	}
}

// Create starts a conversation between the given users.
// IDs are trimmed and de-duplicated, keeping first-seen order.
func (s *Service) Create(ctx context.Context, participants []string) (*Conversation, error) {
	ids := distinct(participants)
	if len(ids) < MinParticipants {
		return nil, ErrTooFewParticipants
	}

	summaries, err := s.store.GetUserSummaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	for _, id := range ids {
		if _, ok := summaries[id]; !ok {
			s.log.Debug().Str("user_id", id).Msg("unknown participant")
			return nil, ErrUnknownParticipant
		}
	}

	now := s.now().UTC()
	conv := &store.Conversation{
		ID:             uuid.NewString(),
		ParticipantIDs: ids,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Info().Str("conversation_id", conv.ID).Strs("participants", ids).Msg("conversation created")
	return withParticipants(conv, summaries), nil
}

// FindByID returns a conversation with resolved participants.
func (s *Service) FindByID(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, conv)
}

// FindForUser lists every conversation the user takes part in, newest activity first.
func (s *Service) FindForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	convs, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var ids []string
	for _, conv := range convs {
		ids = append(ids, conv.ParticipantIDs...)
	}
	summaries, err := s.store.GetUserSummaries(ctx, distinct(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}

	result := make([]*Conversation, 0, len(convs))
	for _, conv := range convs {
		result = append(result, withParticipants(conv, summaries))
	}
	return result, nil
}

// UpdateLastMessage points the conversation at messageID. Concurrent updates are last-write-wins.
func (s *Service) UpdateLastMessage(ctx context.Context, conversationID, messageID string) (*Conversation, error) {
	if err := s.store.SetLastMessage(ctx, conversationID, &messageID, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("set last message: %w", err)
	}
	return s.FindByID(ctx, conversationID)
}

// RequireParticipant loads the conversation and checks that userID belongs to it.
func (s *Service) RequireParticipant(ctx context.Context, conversationID, userID string) (*store.Conversation, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// RecomputeLastMessage points the conversation at its newest remaining message,
// or clears the pointer when none is left.
func (s *Service) RecomputeLastMessage(ctx context.Context, conversationID string) error {
	if err := s.store.RefreshLastMessage(ctx, conversationID, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("refresh last message: %w", err)
	}
	return nil
}

// ReconcileLastMessages repairs every stale or dangling last message pointer.
// It returns the number of conversations repaired.
func (s *Service) ReconcileLastMessages(ctx context.Context) (int, error) {
	ids, err := s.store.ListStaleConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stale conversations: %w", err)
	}

	repaired := 0
	for _, id := range ids {
		if err := s.RecomputeLastMessage(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", id).Msg("failed to reconcile last message")
			continue
		}
		repaired++
	}
	if repaired > 0 {
		s.log.Info().Int("repaired", repaired).Msg("reconciled last message pointers")
	}
	return repaired, nil
}

// Get returns the raw conversation record.
func (s *Service) Get(ctx context.Context, id string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) resolve(ctx context.Context, conv *store.Conversation) (*Conversation, error) {
	summaries, err := s.store.GetUserSummaries(ctx, conv.ParticipantIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	return withParticipants(conv, summaries), nil
}

// withParticipants keeps unknown IDs as bare summaries so the participant set never shrinks.
func withParticipants(conv *store.Conversation, summaries map[string]store.UserSummary) *Conversation {
	participants := make([]store.UserSummary, 0, len(conv.ParticipantIDs))
	for _, id := range conv.ParticipantIDs {
		summary, ok := summaries[id]
		if !ok {
			summary = store.UserSummary{ID: id}
		}
		participants = append(participants, summary)
	}
	return &Conversation{
		ID:            conv.ID,
		Participants:  participants,
		LastMessageID: conv.LastMessageID,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deltadefenders/farmchat-server/internal/auth"
	"github.com/deltadefenders/farmchat-server/internal/service"
	"github.com/deltadefenders/farmchat-server/internal/service/messages"
	"github.com/deltadefenders/farmchat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func assertNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestClient(id, userID string) *Client {
	return NewClient(id, auth.Identity{UserID: userID, Role: store.RoleBuyer}, 0)
}

// fakeMessages stores messages in memory; conversations map to participant sets.
type fakeMessages struct {
	mu            sync.Mutex
	conversations map[string][]string
	saved         []*messages.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{conversations: map[string][]string{
		"c1": {"alice", "bob"},
	}}
}

func (f *fakeMessages) Create(_ context.Context, conversationID, senderID, content string) (*messages.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	participants, ok := f.conversations[conversationID]
	if !ok {
		return nil, service.NewError(service.ErrNotFound, "conversation not found")
	}
	if strings.TrimSpace(content) == "" {
		return nil, service.NewError(service.ErrValidation, "message content must not be empty")
	}
	found := false
	for _, p := range participants {
		found = found || p == senderID
	}
	if !found {
		return nil, service.NewError(service.ErrForbidden, "not a participant in this conversation")
	}

	msg := &messages.Message{
		ID:             conversationID + "-" + string(rune('a'+len(f.saved))),
		ConversationID: conversationID,
		Sender:         store.UserSummary{ID: senderID, Name: senderID},
		Content:        content,
		CreatedAt:      time.Now(),
	}
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeMessages) RequireParticipant(_ context.Context, conversationID, userID string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	participants, ok := f.conversations[conversationID]
	if !ok {
		return nil, service.NewError(service.ErrNotFound, "conversation not found")
	}
	for _, p := range participants {
		if p == userID {
			return &store.Conversation{ID: conversationID, ParticipantIDs: participants}, nil
		}
	}
	return nil, service.NewError(service.ErrForbidden, "not a participant in this conversation")
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

var errBoom = errors.New("boom")

package core

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/service/messages"
	"github.com/deltadefenders/farmchat-server/internal/store"
)

// MessageService persists messages on behalf of connected clients.
type MessageService interface {
	Create(ctx context.Context, conversationID, senderID, content string) (*messages.Message, error)
}

// Membership decides whether a user may join a conversation room.
type Membership interface {
	RequireParticipant(ctx context.Context, conversationID, userID string) (*store.Conversation, error)
}

// Hub is the room registry: conversation id -> set of connected clients.
// Commands run on the calling connection's goroutine, so a slow store call on
// one connection never stalls another.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]*Room

	messages MessageService
	members  Membership
	log      *zerolog.Logger
}

// NewHub creates a new chat hub instance. A nil membership skips the
// participant check on join.
func NewHub(msgs MessageService, members Membership, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]*Room),
		messages: msgs,
		members:  members,
		log:      logger,
	}
}

// Run blocks until ctx is cancelled, then signals every client to disconnect.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
	}
	h.log.Info().Int("clients", len(h.clients)).Msg("hub stopped")
}

// RegisterClient adds a freshly authenticated client.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Str("client_id", c.ID).Str("user_id", c.Identity.UserID).Msg("client registered")
}

// UnregisterClient removes the client from every room it joined.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	for conversationID := range c.rooms {
		h.leaveLocked(c, conversationID)
	}
	delete(h.clients, c)
	h.mu.Unlock()

	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}

// Handle executes one client command and emits the resulting events.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) {
	conversationID := strings.TrimSpace(cmd.ConversationID)
	if conversationID == "" {
		h.emitError(c, coreError(ErrCodeBadRequest, "conversationId is required"))
		return
	}

	switch cmd.Kind {
	case CommandJoinConversation:
		h.join(ctx, c, conversationID)
	case CommandLeaveConversation:
		h.leave(c, conversationID)
	case CommandSendMessage:
		h.send(ctx, c, conversationID, cmd.Content)
	default:
		h.emitError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

// Broadcast delivers event to every client in the conversation room and
// returns the number of clients that accepted it.
func (h *Hub) Broadcast(conversationID string, event *Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[conversationID]
	if !ok {
		return 0
	}
	delivered := room.Broadcast(event)
	if dropped := room.Size() - delivered; dropped > 0 {
		h.log.Warn().
			Str("conversation_id", conversationID).
			Int("dropped", dropped).
			Msg("dropped event for slow clients")
	}
	return delivered
}

// RoomSize reports how many clients are joined to a conversation room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room, ok := h.rooms[conversationID]; ok {
		return room.Size()
	}
	return 0
}

func (h *Hub) join(ctx context.Context, c *Client, conversationID string) {
	if h.members != nil {
		if _, err := h.members.RequireParticipant(ctx, conversationID, c.Identity.UserID); err != nil {
			h.log.Debug().Err(err).
				Str("client_id", c.ID).
				Str("conversation_id", conversationID).
				Msg("join rejected")
			h.emitError(c, ErrorFromService(err))
			return
		}
	}

	h.mu.Lock()
	room, ok := h.rooms[conversationID]
	if !ok {
		room = NewRoom(conversationID)
		h.rooms[conversationID] = room
	}
	room.AddClient(c)
	c.rooms[conversationID] = struct{}{}
	h.mu.Unlock()

	h.emit(c, &Event{Kind: EventJoinedConversation, ConversationID: conversationID})
}

func (h *Hub) leave(c *Client, conversationID string) {
	h.mu.Lock()
	removed := h.leaveLocked(c, conversationID)
	h.mu.Unlock()

	if !removed {
		h.emitError(c, coreError(ErrCodeNotInRoom, "not joined to this conversation"))
		return
	}
	h.emit(c, &Event{Kind: EventLeftConversation, ConversationID: conversationID})
}

func (h *Hub) leaveLocked(c *Client, conversationID string) bool {
	delete(c.rooms, conversationID)
	room, ok := h.rooms[conversationID]
	if !ok {
		return false
	}
	removed := room.RemoveClient(c)
	if room.Empty() {
		delete(h.rooms, conversationID)
	}
	return removed
}

// send persists first and broadcasts only on success; failures go to the sender alone.
func (h *Hub) send(ctx context.Context, c *Client, conversationID, content string) {
	msg, err := h.messages.Create(ctx, conversationID, c.Identity.UserID, content)
	if err != nil {
		h.log.Debug().Err(err).
			Str("client_id", c.ID).
			Str("conversation_id", conversationID).
			Msg("send rejected")
		h.emitError(c, ErrorFromService(err))
		return
	}

	delivered := h.Broadcast(conversationID, &Event{
		Kind:           EventNewMessage,
		ConversationID: conversationID,
		Message:        msg,
	})
	h.log.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", conversationID).
		Int("delivered", delivered).
		Msg("message broadcast")
}

func (h *Hub) emit(c *Client, event *Event) {
	if !c.deliver(event) {
		h.log.Warn().Str("client_id", c.ID).Stringer("event", event.Kind).Msg("dropped event for slow client")
	}
}

// EmitError sends an error event to a single client.
func (h *Hub) EmitError(c *Client, err *CoreError) {
	h.emitError(c, err)
}

func (h *Hub) emitError(c *Client, err *CoreError) {
	h.emit(c, &Event{Kind: EventError, Error: err})
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/core"
	"github.com/deltadefenders/farmchat-server/internal/proto"
	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
	"github.com/deltadefenders/farmchat-server/internal/service/messages"
)

// MessageHandlers provides HTTP handlers for message endpoints.
// Writes are fanned out to websocket clients through the hub.
type MessageHandlers struct {
	messages      *messages.Service
	conversations *conversations.Service
	hub           *core.Hub
	log           *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(
	msgService *messages.Service,
	convService *conversations.Service,
	hub *core.Hub,
	logger *zerolog.Logger,
) *MessageHandlers {
	return &MessageHandlers{
		messages:      msgService,
		conversations: convService,
		hub:           hub,
		log:           logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Content        string `json:"content"`
}

// SuccessResponse acknowledges an operation without a payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// Create persists a message from the caller and broadcasts it.
// POST /api/messages
func (h *MessageHandlers) Create(c *gin.Context) {
	identity, ok := mustIdentity(c, h.log)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), req.ConversationID, identity.UserID, req.Content)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.hub.Broadcast(msg.ConversationID, &core.Event{
		Kind:           core.EventNewMessage,
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
	c.JSON(http.StatusCreated, messageToProto(msg))
}

// List returns the conversation history to a participant, oldest first.
// GET /api/messages/:conversationId
func (h *MessageHandlers) List(c *gin.Context) {
	identity, ok := mustIdentity(c, h.log)
	if !ok {
		return
	}

	conversationID := c.Param("conversationId")
	if _, err := h.conversations.RequireParticipant(c.Request.Context(), conversationID, identity.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}

	msgs, err := h.messages.ListByConversation(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		response = append(response, messageToProto(m))
	}
	c.JSON(http.StatusOK, response)
}

// Delete removes the caller's own message and tells the room.
// DELETE /api/messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	identity, ok := mustIdentity(c, h.log)
	if !ok {
		return
	}

	msg, err := h.messages.Delete(c.Request.Context(), c.Param("id"), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.hub.Broadcast(msg.ConversationID, &core.Event{
		Kind:           core.EventMessageDeleted,
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
)

// ConversationHandlers provides HTTP handlers for conversation endpoints.
type ConversationHandlers struct {
	service *conversations.Service
	log     *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *conversations.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		service: svc,
		log:     logger,
	}
}

// CreateConversationRequest represents the create conversation request body.
type CreateConversationRequest struct {
	Participants []string `json:"participants" binding:"required"`
}

// Create starts a conversation between exactly the requested participants.
// POST /api/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	identity, ok := mustIdentity(c, h.log)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.service.Create(c.Request.Context(), req.Participants)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info().
		Str("conversation_id", conv.ID).
		Str("user_id", identity.UserID).
		Int("participants", len(conv.Participants)).
		Msg("conversation created")
	c.JSON(http.StatusCreated, conversationToResponse(conv))
}

// ListMine lists the caller's conversations, most recently active first.
// GET /api/conversations/my
func (h *ConversationHandlers) ListMine(c *gin.Context) {
	identity, ok := mustIdentity(c, h.log)
	if !ok {
		return
	}

	convs, err := h.service.FindForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		response = append(response, conversationToResponse(conv))
	}
	c.JSON(http.StatusOK, response)
}

// Get returns one conversation to a participant.
// GET /api/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	identity, ok := mustIdentity(c, h.log)
	if !ok {
		return
	}

	id := c.Param("id")
	if _, err := h.service.RequireParticipant(c.Request.Context(), id, identity.UserID); err != nil {
		respondError(c, h.log, err)
		return
	}

	conv, err := h.service.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, conversationToResponse(conv))
}

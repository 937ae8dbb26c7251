package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/auth"
	"github.com/deltadefenders/farmchat-server/internal/config"
	"github.com/deltadefenders/farmchat-server/internal/core"
	"github.com/deltadefenders/farmchat-server/internal/service/conversations"
	"github.com/deltadefenders/farmchat-server/internal/service/messages"
)

// NewServer builds the HTTP server: health check, websocket gateway and the REST API.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	convService *conversations.Service,
	msgService *messages.Service,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg, logger)))

	api := router.Group("/api")

	authHandlers := NewAPIHandlers(authService, logger)
	api.POST("/auth/register", authHandlers.Register)
	api.POST("/auth/login", authHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))

	convHandlers := NewConversationHandlers(convService, logger)
	protected.POST("/conversations", convHandlers.Create)
	protected.GET("/conversations/my", convHandlers.ListMine)
	protected.GET("/conversations/:id", convHandlers.Get)

	msgHandlers := NewMessageHandlers(msgService, convService, hub, logger)
	protected.POST("/messages", msgHandlers.Create)
	protected.GET("/messages/:conversationId", msgHandlers.List)
	protected.DELETE("/messages/:id", msgHandlers.Delete)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/deltadefenders/farmchat-server/internal/auth"
	"github.com/deltadefenders/farmchat-server/internal/service"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFromError maps a service failure to an HTTP status and a safe message.
func statusFromError(err error) (int, string) {
	if errors.Is(err, auth.ErrUserExists) {
		return http.StatusConflict, "user already exists"
	}

	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		return http.StatusInternalServerError, "internal server error"
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, svcErr.Msg
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, svcErr.Msg
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, svcErr.Msg
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, svcErr.Msg
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func respondError(c *gin.Context, logger *zerolog.Logger, err error) {
	status, msg := statusFromError(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: msg})
}

// mustIdentity writes 401 and returns false when the middleware did not run.
func mustIdentity(c *gin.Context, logger *zerolog.Logger) (auth.Identity, bool) {
	identity, ok := currentIdentity(c)
	if !ok {
		logger.Error().Msg("identity not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	return identity, ok
}

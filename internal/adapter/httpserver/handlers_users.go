package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/taskboard/internal/platform/errors"
	"github.com/pscheid92/taskboard/internal/platform/token"
)

func (s *Server) registerUserRoutes() {
	rateLimiter := newRateLimiter(s.config.AuthRateLimit, authRateLimitBurst)

	s.echo.POST("/users", s.handleRegisterUser, rateLimiter)
	s.echo.GET("/users/me", s.handleCurrentUser, s.requireAuth)
}

func (s *Server) handleRegisterUser(c echo.Context) error {
	payload, err := decodeObject(c)
	if err != nil {
		return err
	}
	email, _ := payload["email"].(string)

	user, err := s.app.RegisterUser(c.Request().Context(), email, payload)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, user); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleCurrentUser returns the registry record behind the credential. A valid
// token for an email that never registered is a 404.
func (s *Server) handleCurrentUser(c echo.Context) error {
	identity, ok := c.Get(identityKey).(*token.Identity)
	if !ok {
		return apperrors.UnauthorizedError("authentication required")
	}

	user, err := s.app.GetUser(c.Request().Context(), identity.Email)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, user)
}

package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/taskboard/internal/domain"
	apperrors "github.com/pscheid92/taskboard/internal/platform/errors"
	"github.com/pscheid92/taskboard/internal/platform/token"
)

const (
	tokenCookieName = "token"
	identityKey     = "identity"
	bearerPrefix    = "Bearer "
)

func (s *Server) registerAuthRoutes() {
	rateLimiter := newRateLimiter(s.config.AuthRateLimit, authRateLimitBurst)

	s.echo.POST("/jwt", s.handleIssueToken, rateLimiter)
	s.echo.DELETE("/logout", s.handleLogout)
}

func (s *Server) handleIssueToken(c echo.Context) error {
	payload, err := decodeObject(c)
	if err != nil {
		return err
	}

	email, _ := payload["email"].(string)
	email = domain.NormalizeEmail(email)
	if email == "" {
		return apperrors.ValidationError("email is required")
	}

	attrs := maps.Clone(payload)
	delete(attrs, "email")
	if len(attrs) == 0 {
		attrs = nil
	}

	raw, _, err := s.tokens.Issue(token.Identity{Email: email, Attributes: attrs})
	if err != nil {
		return apperrors.InternalError("failed to issue token", err)
	}

	c.SetCookie(s.tokenCookie(raw, int(s.tokens.TTL().Seconds())))
	slog.InfoContext(c.Request().Context(), "Token issued", "email", email)

	if err := c.JSON(http.StatusOK, successResponse); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	c.SetCookie(s.tokenCookie("", -1))
	if err := c.JSON(http.StatusOK, successResponse); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// tokenCookie builds the credential cookie. Cross-site front ends in production
// need SameSite=None, which browsers only accept together with Secure.
func (s *Server) tokenCookie(value string, maxAge int) *http.Cookie {
	cookie := &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if s.config.IsProduction() {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

// requireAuth verifies the credential from the token cookie, or from an
// Authorization bearer header when no cookie is sent.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := credentialFromRequest(c.Request())
		if raw == "" {
			return apperrors.UnauthorizedError("authentication required")
		}

		identity, err := s.tokens.Verify(raw)
		if errors.Is(err, token.ErrInvalidToken) {
			return apperrors.UnauthorizedError("invalid or expired token")
		}
		if err != nil {
			return apperrors.InternalError("failed to verify token", err)
		}

		c.Set(identityKey, identity)
		return next(c)
	}
}

// requireOwner rejects requests whose path owner differs from the authenticated
// email. It is a no-op when owner matching is disabled.
func (s *Server) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.config.EnforceOwnerMatch {
			return next(c)
		}

		identity, ok := c.Get(identityKey).(*token.Identity)
		if !ok {
			return apperrors.UnauthorizedError("authentication required")
		}

		owner, err := ownerParam(c)
		if err != nil {
			return err
		}
		if identity.Email != owner {
			return apperrors.ForbiddenError("token does not belong to this owner").WithField("owner", owner)
		}
		return next(c)
	}
}

func credentialFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return ""
}

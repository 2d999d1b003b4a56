package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/taskboard/internal/domain"
	"github.com/pscheid92/taskboard/internal/platform/correlation"
	apperrors "github.com/pscheid92/taskboard/internal/platform/errors"
	"github.com/pscheid92/taskboard/internal/platform/token"
)

// correlationMiddleware adopts a well-formed inbound X-Correlation-ID or mints one,
// and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(translateDomainError(err))
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// translateDomainError maps store and registry sentinels onto client-facing errors.
// Anything else is left for AsStructuredError to treat as internal.
func translateDomainError(err error) error {
	var structuredErr *apperrors.Error
	if errors.As(err, &structuredErr) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrOwnerNotFound):
		return apperrors.NotFoundError("owner not found")
	case errors.Is(err, domain.ErrProjectNotFound):
		return apperrors.NotFoundError("project not found")
	case errors.Is(err, domain.ErrTaskNotFound):
		return apperrors.NotFoundError("task not found")
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NotFoundError("user not found")
	case errors.Is(err, domain.ErrUserExists):
		return apperrors.ConflictError("user already exists")
	case errors.Is(err, domain.ErrEmailRequired):
		return apperrors.ValidationError("email is required")
	case errors.Is(err, domain.ErrInvalidField):
		return apperrors.ValidationError(err.Error())
	}
	return err
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	if id, ok := c.Get(identityKey).(*token.Identity); ok {
		attrs = append(attrs, "email", id.Email)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeUnauthorized, apperrors.TypeForbidden:
		slog.InfoContext(ctx, "Access denied", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/taskboard/internal/domain"
	apperrors "github.com/pscheid92/taskboard/internal/platform/errors"
)

const maxBodyBytes = 1 << 20

var successResponse = map[string]bool{"success": true}

// decodeObject reads the request body as a JSON object. An empty body decodes to an
// empty object; any other non-object body is a validation error.
func decodeObject(c echo.Context) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperrors.ValidationError("failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return nil, apperrors.ValidationError("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, apperrors.ValidationError("request body must be a JSON object")
	}
	return obj, nil
}

// optionalString returns nil when key is absent or null.
func optionalString(obj map[string]any, key string) (*string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, apperrors.ValidationError(key + " must be a string").WithField("field", key)
	}
	return &s, nil
}

func ownerParam(c echo.Context) (string, error) {
	raw := c.Param("owner")
	owner, err := url.PathUnescape(raw)
	if err != nil {
		return "", apperrors.ValidationError("invalid owner").WithField("owner", raw)
	}
	owner = domain.NormalizeEmail(owner)
	if owner == "" {
		return "", apperrors.ValidationError("owner is required")
	}
	return owner, nil
}

// idParam parses a path segment as a positive int64 before any store access.
func idParam(c echo.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("invalid " + name).WithField(name, raw)
	}
	return id, nil
}

// Package httpserver exposes the JSON API, the token cookie endpoints, the relay
// upgrade and the health checks over echo.
//
// Handlers return errors; ErrorHandlingMiddleware translates domain sentinels and
// structured errors into JSON responses.
package httpserver

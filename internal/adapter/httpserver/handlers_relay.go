package httpserver

import "github.com/labstack/echo/v4"

func (s *Server) registerRelayRoutes() {
	if s.relayHandler == nil {
		return
	}
	s.echo.GET("/ws", echo.WrapHandler(s.relayHandler))
}

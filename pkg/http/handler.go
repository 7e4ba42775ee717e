package http

import "github.com/labstack/echo/v4"

// Handler is anything that can attach its routes to the shared Echo
// instance. The server composes several of these onto one listener.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

package http

import "github.com/labstack/echo/v4"

// Handler is implemented by every API group mounted on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

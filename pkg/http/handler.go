package http

import "github.com/labstack/echo/v4"

// Handler registers a group of routes on the server. The clients API is the
// one implementation today; health and metrics endpoints are built in.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

package router

import (
	"github.com/labstack/echo/v4"

	"partshub/internal/adapter/api/handler"
)

// SetupWebSocketRouter registers /ws. The handler authenticates itself since
// browsers cannot set headers on the upgrade request.
func SetupWebSocketRouter(e *echo.Echo) {
	e.GET("/ws", handler.GetWebSocketHandler().HandleWebSocket)
}

package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"partshub/internal/adapter/api/middleware"
	"partshub/internal/infrastructure/ratelimit"
)

const (
	ActionMarkRead    = "mark_read"
	ActionSendMessage = "send_message"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter, gatherer prometheus.Gatherer) {
	SetupConversationRouter(e, authMiddleware, limiter)
	SetupWebSocketRouter(e)
	SetupHealthRouter(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "partshub unread service")
	})
}

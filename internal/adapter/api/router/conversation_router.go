package router

import (
	"github.com/labstack/echo/v4"

	"partshub/internal/adapter/api/handler"
	"partshub/internal/adapter/api/middleware"
	"partshub/internal/infrastructure/ratelimit"
)

func SetupConversationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	conversationHandler := handler.GetConversationHandler()

	v1 := e.Group("/v1")
	v1.Use(authMiddleware.Authenticate)

	v1.GET("/unread-summary", conversationHandler.GetUnreadSummary)

	conversations := v1.Group("/conversations")
	conversations.GET("", conversationHandler.ListConversations)
	conversations.POST("", conversationHandler.StartConversation)
	conversations.POST("/:id/messages", conversationHandler.SendMessage, middleware.RateLimit(limiter, ActionSendMessage))
	conversations.POST("/:id/read", conversationHandler.MarkAsRead, middleware.RateLimit(limiter, ActionMarkRead))
	conversations.POST("/:id/archive", conversationHandler.Archive)
}

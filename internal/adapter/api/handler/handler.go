package handler

import (
	"partshub/internal/adapter/api/middleware"
	"partshub/internal/infrastructure/websocket"
	"partshub/internal/usecase"
)

var (
	conversationHandler *ConversationHandler
	webSocketHandler    *WebSocketHandler
	healthHandler       *HealthHandler
)

func Setup(
	conversationUseCase *usecase.ConversationUseCase,
	wsManager *websocket.Manager,
	authMiddleware *middleware.AuthMiddleware,
	allowedOrigins []string,
	healthChecks map[string]Pinger,
) {
	conversationHandler = NewConversationHandler(conversationUseCase)
	webSocketHandler = NewWebSocketHandler(wsManager, authMiddleware, allowedOrigins)
	healthHandler = NewHealthHandler(healthChecks)
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

package handler

import (
	"github.com/labstack/echo/v4"

	"partshub/internal/domain/entity"
	"partshub/internal/usecase"
	"partshub/pkg/response"
	"partshub/pkg/utils"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
	}
}

type subjectRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=product service"`
	ID    string `json:"id" validate:"required"`
	Title string `json:"title"`
}

type startConversationRequest struct {
	SellerID       string          `json:"seller_id" validate:"required"`
	Subject        *subjectRequest `json:"subject" validate:"omitempty"`
	InitialMessage string          `json:"initial_message" validate:"max=4000"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type markReadResponse struct {
	Success bool `json:"success"`
}

// GetUnreadSummary returns the authoritative unread total and conversations.
func (h *ConversationHandler) GetUnreadSummary(c echo.Context) error {
	userID := c.Get("uid").(string)

	summary, err := h.conversationUseCase.UnreadSummary(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summary)
}

// ListConversations returns up to ?limit= conversations, unread first.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversations, err := h.conversationUseCase.ListConversations(c.Request().Context(), userID, utils.GetLimit(c))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversations)
}

func (h *ConversationHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	input := usecase.StartConversationInput{
		SellerID:       req.SellerID,
		InitialMessage: req.InitialMessage,
	}
	if req.Subject != nil {
		input.Subject = &entity.SubjectRef{Kind: req.Subject.Kind, ID: req.Subject.ID, Title: req.Subject.Title}
	}

	conversation, err := h.conversationUseCase.StartConversation(c.Request().Context(), userID, input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conversation)
}

func (h *ConversationHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversation, err := h.conversationUseCase.RecordMessage(c.Request().Context(), userID, usecase.RecordMessageInput{
		ConversationID: c.Param("id"),
		Content:        req.Content,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conversation)
}

// MarkAsRead acknowledges every message of the conversation for the caller.
func (h *ConversationHandler) MarkAsRead(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.conversationUseCase.MarkRead(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, markReadResponse{Success: true})
}

func (h *ConversationHandler) Archive(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.conversationUseCase.Archive(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "archived"})
}

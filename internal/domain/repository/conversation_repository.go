package repository

import (
	"context"
	"time"

	"partshub/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	FindBySubject(ctx context.Context, buyerID, sellerID, subjectID string) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error)

	// ApplyMessage atomically records a new message: preview, activity time and
	// an unread increment for every participant except the sender.
	ApplyMessage(ctx context.Context, id, senderID, preview string, at time.Time) (*entity.Conversation, error)
	// MarkRead atomically resets the user's unread count to zero.
	MarkRead(ctx context.Context, id, userID string) (*entity.Conversation, error)
	Archive(ctx context.Context, id, userID string) error
}

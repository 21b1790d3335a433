package usecase

import (
	"context"

	"partshub/internal/domain/entity"
)

// EventPublisher fans unread events out to the realtime channel.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.UnreadEvent) error
}


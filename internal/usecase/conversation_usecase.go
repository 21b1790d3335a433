package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"partshub/internal/domain/entity"
	"partshub/internal/domain/repository"
	"partshub/internal/metrics"
	"partshub/pkg/errors"
	"partshub/pkg/logger"
)

const (
	previewMaxRunes      = 140
	summaryConversations = 50
)

type ConversationUseCase struct {
	repo      repository.ConversationRepository
	publisher EventPublisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewConversationUseCase(
	repo repository.ConversationRepository,
	publisher EventPublisher,
	log *logger.Logger,
	m *metrics.Metrics,
) *ConversationUseCase {
	return &ConversationUseCase{
		repo:      repo,
		publisher: publisher,
		log:       log.With("component", "ConversationUseCase"),
		metrics:   m,
		now:       time.Now,
	}
}

type StartConversationInput struct {
	SellerID       string
	Subject        *entity.SubjectRef
	InitialMessage string
}

type RecordMessageInput struct {
	ConversationID string
	Content        string
}

// StartConversation opens (or reuses) the buyer's conversation with a seller
// about a product or service.
func (uc *ConversationUseCase) StartConversation(ctx context.Context, buyerID string, input StartConversationInput) (*entity.ConversationSummary, error) {
	if buyerID == input.SellerID {
		return nil, errors.BadRequest("You cannot start a conversation with yourself", nil)
	}

	var conversation *entity.Conversation
	if input.Subject != nil {
		existing, err := uc.repo.FindBySubject(ctx, buyerID, input.SellerID, input.Subject.ID)
		if err != nil && !errors.Is(err, "NOT_FOUND") {
			return nil, err
		}
		conversation = existing
	}

	if conversation == nil {
		conversation = &entity.Conversation{
			Participants:   entity.Participants{BuyerID: buyerID, SellerID: input.SellerID},
			Subject:        input.Subject,
			LastActivityAt: uc.now(),
		}
		if err := uc.repo.Create(ctx, conversation); err != nil {
			uc.log.Error("failed to create conversation", "buyerID", buyerID, "sellerID", input.SellerID, "error", err)
			return nil, err
		}
	}

	if strings.TrimSpace(input.InitialMessage) != "" {
		updated, err := uc.RecordMessage(ctx, buyerID, RecordMessageInput{
			ConversationID: conversation.ID,
			Content:        input.InitialMessage,
		})
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	summary := conversation.SummaryFor(buyerID)
	return &summary, nil
}

// RecordMessage registers a new message from senderID: it updates the
// preview and activity time, bumps the other participant's unread count and
// pushes the new absolute count to them.
func (uc *ConversationUseCase) RecordMessage(ctx context.Context, senderID string, input RecordMessageInput) (*entity.ConversationSummary, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, errors.BadRequest("Message content is required", nil)
	}

	if _, err := uc.participantConversation(ctx, senderID, input.ConversationID); err != nil {
		return nil, err
	}

	updated, err := uc.repo.ApplyMessage(ctx, input.ConversationID, senderID, preview(content), uc.now())
	if err != nil {
		uc.log.Error("failed to apply message", "conversationID", input.ConversationID, "error", err)
		return nil, err
	}

	uc.publish(ctx, updated, updated.Participants.Other(senderID))

	summary := updated.SummaryFor(senderID)
	return &summary, nil
}

// MarkRead resets the viewer's unread count and echoes the zero count to the
// viewer's other sessions.
func (uc *ConversationUseCase) MarkRead(ctx context.Context, userID, conversationID string) error {
	if _, err := uc.participantConversation(ctx, userID, conversationID); err != nil {
		return err
	}

	updated, err := uc.repo.MarkRead(ctx, conversationID, userID)
	if err != nil {
		uc.log.Error("failed to mark conversation read", "conversationID", conversationID, "userID", userID, "error", err)
		return err
	}

	uc.publish(ctx, updated, userID)
	return nil
}

func (uc *ConversationUseCase) Archive(ctx context.Context, userID, conversationID string) error {
	if _, err := uc.participantConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return uc.repo.Archive(ctx, conversationID, userID)
}

// ListConversations returns the viewer's visible conversations, unread first.
func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID string, limit int) ([]entity.ConversationSummary, error) {
	summaries, err := uc.visibleSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// UnreadSummary returns the authoritative total across all visible
// conversations together with the most relevant ones.
func (uc *ConversationUseCase) UnreadSummary(ctx context.Context, userID string) (*entity.UnreadSummary, error) {
	summaries, err := uc.visibleSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, s := range summaries {
		total += s.UnreadCount
	}
	if len(summaries) > summaryConversations {
		summaries = summaries[:summaryConversations]
	}
	return &entity.UnreadSummary{Total: total, Conversations: summaries}, nil
}

func (uc *ConversationUseCase) visibleSummaries(ctx context.Context, userID string) ([]entity.ConversationSummary, error) {
	conversations, err := uc.repo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]entity.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		if c.ArchivedFor(userID) {
			continue
		}
		summaries = append(summaries, c.SummaryFor(userID))
	}
	entity.SortByPriority(summaries)
	return summaries, nil
}

func (uc *ConversationUseCase) participantConversation(ctx context.Context, userID, conversationID string) (*entity.Conversation, error) {
	conversation, err := uc.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.Participants.Has(userID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	return conversation, nil
}

// publish is best effort: a lost event is repaired by the client's next pull.
func (uc *ConversationUseCase) publish(ctx context.Context, c *entity.Conversation, recipientID string) {
	event := entity.UnreadEvent{
		UserID:                     recipientID,
		ConversationID:             c.ID,
		UnreadCountForConversation: c.UnreadFor(recipientID),
		LastActivityAt:             c.LastActivityAt,
		LastMessagePreview:         c.LastMessagePreview,
	}
	err := uc.publisher.Publish(ctx, event)
	uc.metrics.ObservePublish(err == nil)
	if err != nil {
		uc.log.Warn("failed to publish unread event", "conversationID", c.ID, "userID", recipientID, "error", err)
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewMaxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewMaxRunes-1]) + "…"
}

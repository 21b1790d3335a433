package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"partshub/internal/domain/entity"
	"partshub/internal/domain/repository"
	"partshub/pkg/errors"
	"partshub/pkg/logger"
)

const conversationsCollection = "conversations"

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	prepareMembers(conversation)

	_, err := r.client.Collection(conversationsCollection).Doc(conversation.ID).Create(ctx, conversation)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.New("CONFLICT", "Conversation already exists", 409, err)
		}
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection(conversationsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return decodeConversation(doc)
}

func (r *firestoreConversationRepository) FindBySubject(ctx context.Context, buyerID, sellerID, subjectID string) (*entity.Conversation, error) {
	query := r.client.Collection(conversationsCollection).
		Where("participants.buyerId", "==", buyerID).
		Where("participants.sellerId", "==", sellerID).
		Where("subject.id", "==", subjectID).
		Limit(1)

	doc, err := query.Documents(ctx).Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to query conversation by subject", err)
	}
	return decodeConversation(doc)
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	query := r.client.Collection(conversationsCollection).
		Where("members", "array-contains", userID).
		OrderBy("lastActivityAt", firestore.Desc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var conversations []*entity.Conversation
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate conversations", err)
		}
		c, err := decodeConversation(doc)
		if err != nil {
			logger.Warn("Skipping malformed conversation %s for user %s: %v", doc.Ref.ID, userID, err)
			continue
		}
		conversations = append(conversations, c)
	}
	return conversations, nil
}

func (r *firestoreConversationRepository) ApplyMessage(ctx context.Context, id, senderID, preview string, at time.Time) (*entity.Conversation, error) {
	return r.mutate(ctx, id, func(c *entity.Conversation) {
		applyMessage(c, senderID, preview, at)
	})
}

func (r *firestoreConversationRepository) MarkRead(ctx context.Context, id, userID string) (*entity.Conversation, error) {
	return r.mutate(ctx, id, func(c *entity.Conversation) {
		if c.UnreadCount == nil {
			c.UnreadCount = make(map[string]int)
		}
		c.UnreadCount[userID] = 0
		c.UpdatedAt = time.Now()
	})
}

func (r *firestoreConversationRepository) Archive(ctx context.Context, id, userID string) error {
	_, err := r.mutate(ctx, id, func(c *entity.Conversation) {
		if !c.ArchivedFor(userID) {
			c.ArchivedBy = append(c.ArchivedBy, userID)
		}
		c.UpdatedAt = time.Now()
	})
	return err
}

// mutate runs fn inside a Firestore transaction so concurrent counters never
// lose increments.
func (r *firestoreConversationRepository) mutate(ctx context.Context, id string, fn func(*entity.Conversation)) (*entity.Conversation, error) {
	ref := r.client.Collection(conversationsCollection).Doc(id)
	var result *entity.Conversation

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		c, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		fn(c)
		result = c
		return tx.Set(ref, c)
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", nil)
		}
		if _, ok := err.(*errors.AppError); ok {
			return nil, err
		}
		return nil, errors.Internal("Failed to update conversation", err)
	}
	return result, nil
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var c entity.Conversation
	if err := doc.DataTo(&c); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	if c.ID == "" {
		c.ID = doc.Ref.ID
	}
	return &c, nil
}

package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"partshub/internal/domain/entity"
	"partshub/internal/domain/repository"
	"partshub/pkg/errors"
)

type memoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entity.Conversation
}

// NewMemoryConversationRepository keeps conversations in process memory. Used
// for local development and tests.
func NewMemoryConversationRepository() repository.ConversationRepository {
	return &memoryConversationRepository{
		conversations: make(map[string]*entity.Conversation),
	}
}

func (r *memoryConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	prepareMembers(conversation)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conversations[conversation.ID]; exists {
		return errors.New("CONFLICT", "Conversation already exists", 409, nil)
	}
	r.conversations[conversation.ID] = cloneConversation(conversation)
	return nil
}

func (r *memoryConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return cloneConversation(c), nil
}

func (r *memoryConversationRepository) FindBySubject(ctx context.Context, buyerID, sellerID, subjectID string) (*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conversations {
		if c.Participants.BuyerID != buyerID || c.Participants.SellerID != sellerID {
			continue
		}
		if c.Subject != nil && c.Subject.ID == subjectID {
			return cloneConversation(c), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *memoryConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Conversation
	for _, c := range r.conversations {
		if c.Participants.Has(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	return out, nil
}

func (r *memoryConversationRepository) ApplyMessage(ctx context.Context, id, senderID, preview string, at time.Time) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	applyMessage(c, senderID, preview, at)
	return cloneConversation(c), nil
}

func (r *memoryConversationRepository) MarkRead(ctx context.Context, id, userID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	c.UnreadCount[userID] = 0
	c.UpdatedAt = time.Now()
	return cloneConversation(c), nil
}

func (r *memoryConversationRepository) Archive(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if !c.ArchivedFor(userID) {
		c.ArchivedBy = append(c.ArchivedBy, userID)
	}
	c.UpdatedAt = time.Now()
	return nil
}

// applyMessage mutates c in place. Shared by the memory and Firestore
// repositories so both follow the same counting rules.
func applyMessage(c *entity.Conversation, senderID, preview string, at time.Time) {
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	for _, member := range []string{c.Participants.BuyerID, c.Participants.SellerID} {
		if member != senderID {
			c.UnreadCount[member]++
		}
	}
	// New activity brings an archived conversation back for its recipients.
	kept := c.ArchivedBy[:0]
	for _, id := range c.ArchivedBy {
		if id == senderID {
			kept = append(kept, id)
		}
	}
	c.ArchivedBy = kept
	c.LastMessagePreview = preview
	if at.After(c.LastActivityAt) {
		c.LastActivityAt = at
	}
	c.UpdatedAt = time.Now()
}

func prepareMembers(c *entity.Conversation) {
	c.Members = []string{c.Participants.BuyerID, c.Participants.SellerID}
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
}

func cloneConversation(c *entity.Conversation) *entity.Conversation {
	cp := *c
	if c.Subject != nil {
		s := *c.Subject
		cp.Subject = &s
	}
	cp.Members = append([]string(nil), c.Members...)
	cp.ArchivedBy = append([]string(nil), c.ArchivedBy...)
	cp.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	return &cp
}

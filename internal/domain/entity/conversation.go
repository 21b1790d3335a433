package entity

import (
	"sort"
	"time"
)

const (
	SubjectProduct = "product"
	SubjectService = "service"
)

// SubjectRef points at the product or service a conversation is about.
type SubjectRef struct {
	Kind  string `json:"kind" firestore:"kind"`
	ID    string `json:"id" firestore:"id"`
	Title string `json:"title,omitempty" firestore:"title,omitempty"`
}

type Participants struct {
	BuyerID  string `json:"buyer_id" firestore:"buyerId"`
	SellerID string `json:"seller_id" firestore:"sellerId"`
}

func (p Participants) Has(userID string) bool {
	return userID != "" && (p.BuyerID == userID || p.SellerID == userID)
}

// Other returns the participant that is not userID.
func (p Participants) Other(userID string) string {
	if p.BuyerID == userID {
		return p.SellerID
	}
	return p.BuyerID
}

// Conversation is the stored buyer/seller thread. Unread counts are kept per
// participant; ConversationSummary is the projection for one viewer.
type Conversation struct {
	ID                 string         `json:"id" firestore:"id"`
	Participants       Participants   `json:"participants" firestore:"participants"`
	Members            []string       `json:"-" firestore:"members"`
	Subject            *SubjectRef    `json:"subject,omitempty" firestore:"subject,omitempty"`
	LastMessagePreview string         `json:"last_message_preview" firestore:"lastMessagePreview"`
	LastActivityAt     time.Time      `json:"last_activity_at" firestore:"lastActivityAt"`
	UnreadCount        map[string]int `json:"unread_count" firestore:"unreadCount"`
	ArchivedBy         []string       `json:"archived_by,omitempty" firestore:"archivedBy,omitempty"`
	CreatedAt          time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt          time.Time      `json:"updated_at" firestore:"updatedAt"`
}

func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[userID]
}

func (c *Conversation) ArchivedFor(userID string) bool {
	for _, id := range c.ArchivedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// SummaryFor projects the conversation for the given viewer.
func (c *Conversation) SummaryFor(userID string) ConversationSummary {
	var subject *SubjectRef
	if c.Subject != nil {
		s := *c.Subject
		subject = &s
	}
	return ConversationSummary{
		ID:                 c.ID,
		Participants:       c.Participants,
		Subject:            subject,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
		UnreadCount:        c.UnreadFor(userID),
		Archived:           c.ArchivedFor(userID),
	}
}

// ConversationSummary is what the viewer's dropdown and badges render.
type ConversationSummary struct {
	ID                 string       `json:"id"`
	Participants       Participants `json:"participants"`
	Subject            *SubjectRef  `json:"subject,omitempty"`
	LastMessagePreview string       `json:"last_message_preview"`
	LastActivityAt     time.Time    `json:"last_activity_at"`
	UnreadCount        int          `json:"unread_count"`
	Archived           bool         `json:"archived,omitempty"`
}

// UnreadSummary is the authoritative snapshot returned by GET /unread-summary.
type UnreadSummary struct {
	Total         int                   `json:"total"`
	Conversations []ConversationSummary `json:"conversations"`
}

// HasPriorityOver orders unread conversations first, then by most recent
// activity, then by ID so the order is total.
func (s ConversationSummary) HasPriorityOver(o ConversationSummary) bool {
	su, ou := s.UnreadCount > 0, o.UnreadCount > 0
	if su != ou {
		return su
	}
	if !s.LastActivityAt.Equal(o.LastActivityAt) {
		return s.LastActivityAt.After(o.LastActivityAt)
	}
	return s.ID < o.ID
}

func SortByPriority(list []ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].HasPriorityOver(list[j])
	})
}

package entity

import "time"

// UnreadEvent is pushed to a viewer whenever one of their conversations changes
// unread state. Counts are absolute so duplicate delivery is harmless.
type UnreadEvent struct {
	UserID                     string    `json:"user_id,omitempty"`
	ConversationID             string    `json:"conversation_id"`
	UnreadCountForConversation int       `json:"unread_count_for_conversation"`
	LastActivityAt             time.Time `json:"last_activity_at"`
	LastMessagePreview         string    `json:"last_message_preview,omitempty"`
}

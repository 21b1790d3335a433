package surface

import (
	"partshub/internal/domain/entity"
	"partshub/pkg/logger"
)

// ConversationMarker is the unread dot shown next to one conversation, for
// example in an open chat list or conversation header.
type ConversationMarker struct {
	conversationID string
	log            *logger.Logger

	mount
	unread int
}

func NewConversationMarker(conversationID string, log *logger.Logger) *ConversationMarker {
	if log == nil {
		log = logger.Nop()
	}
	return &ConversationMarker{
		conversationID: conversationID,
		log:            log.With("surface", "marker", "conversationID", conversationID),
	}
}

func (m *ConversationMarker) Mount(src Source) {
	if m.mounted() {
		return
	}
	m.set(src.SubscribeConversations(m.onConversations))
}

func (m *ConversationMarker) Unmount() {
	m.release()
}

// Unread is the conversation's unread count, 0 when it is not tracked.
func (m *ConversationMarker) Unread() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unread
}

func (m *ConversationMarker) Visible() bool {
	return m.Unread() > 0
}

func (m *ConversationMarker) onConversations(list []entity.ConversationSummary) {
	unread := 0
	for _, c := range list {
		if c.ID == m.conversationID {
			unread = c.UnreadCount
			break
		}
	}

	m.mu.Lock()
	changed := m.unread != unread
	m.unread = unread
	m.mu.Unlock()

	if changed {
		m.log.Debug("marker updated", "unread", unread)
	}
}

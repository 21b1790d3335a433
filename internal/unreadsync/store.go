package unreadsync

import (
	"partshub/internal/domain/entity"
)

// Store holds the viewer's conversation summaries keyed by ID. Reads return
// copies in priority order: unread first, then most recent activity.
type Store struct {
	byID    map[string]entity.ConversationSummary
	version uint64
}

func NewStore() *Store {
	return &Store{byID: make(map[string]entity.ConversationSummary)}
}

// Version changes whenever the store content changes.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) Len() int { return len(s.byID) }

func (s *Store) Get(id string) (entity.ConversationSummary, bool) {
	c, ok := s.byID[id]
	if !ok {
		return entity.ConversationSummary{}, false
	}
	return cloneSummary(c), true
}

// Unread returns the stored unread count of id, 0 when unknown.
func (s *Store) Unread(id string) int {
	return s.byID[id].UnreadCount
}

// UpsertMany merges conversations by ID, keeping whichever record has the
// later LastActivityAt. On a tie the incoming record wins. It reports whether
// anything changed.
func (s *Store) UpsertMany(conversations []entity.ConversationSummary) bool {
	changed := false
	for _, in := range conversations {
		if in.ID == "" {
			continue
		}
		if in.UnreadCount < 0 {
			in.UnreadCount = 0
		}
		cur, ok := s.byID[in.ID]
		if ok && in.LastActivityAt.Before(cur.LastActivityAt) {
			continue
		}
		if ok && sameSummary(cur, in) {
			continue
		}
		s.byID[in.ID] = cloneSummary(in)
		changed = true
	}
	if changed {
		s.version++
	}
	return changed
}

// ApplyPush merges one pushed record. It follows UpsertMany except that a
// record with the same LastActivityAt may only lower the unread count: a
// redelivered event cannot undo a read, while the server's read echo lands.
func (s *Store) ApplyPush(in entity.ConversationSummary) bool {
	if cur, ok := s.byID[in.ID]; ok && in.LastActivityAt.Equal(cur.LastActivityAt) && in.UnreadCount > cur.UnreadCount {
		return false
	}
	return s.UpsertMany([]entity.ConversationSummary{in})
}

// Replace swaps the whole content for an authoritative snapshot.
func (s *Store) Replace(conversations []entity.ConversationSummary) {
	next := make(map[string]entity.ConversationSummary, len(conversations))
	for _, c := range conversations {
		if c.ID == "" {
			continue
		}
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		next[c.ID] = cloneSummary(c)
	}
	s.byID = next
	s.version++
}

// MarkRead zeroes the unread count of id and returns how many were removed.
func (s *Store) MarkRead(id string) int {
	c, ok := s.byID[id]
	if !ok || c.UnreadCount == 0 {
		return 0
	}
	removed := c.UnreadCount
	c.UnreadCount = 0
	s.byID[id] = c
	s.version++
	return removed
}

// Restore puts count back on id if it is still marked read.
func (s *Store) Restore(id string, count int) bool {
	c, ok := s.byID[id]
	if !ok || c.UnreadCount != 0 || count <= 0 {
		return false
	}
	c.UnreadCount = count
	s.byID[id] = c
	s.version++
	return true
}

// Sum adds up the unread counts of every stored conversation.
func (s *Store) Sum() int {
	total := 0
	for _, c := range s.byID {
		total += c.UnreadCount
	}
	return total
}

// List returns up to limit conversations in priority order; limit <= 0
// returns all of them.
func (s *Store) List(limit int) []entity.ConversationSummary {
	out := make([]entity.ConversationSummary, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, cloneSummary(c))
	}
	entity.SortByPriority(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cloneSummary(c entity.ConversationSummary) entity.ConversationSummary {
	if c.Subject != nil {
		subject := *c.Subject
		c.Subject = &subject
	}
	return c
}

func sameSummary(a, b entity.ConversationSummary) bool {
	if a.ID != b.ID ||
		a.Participants != b.Participants ||
		a.LastMessagePreview != b.LastMessagePreview ||
		!a.LastActivityAt.Equal(b.LastActivityAt) ||
		a.UnreadCount != b.UnreadCount ||
		a.Archived != b.Archived {
		return false
	}
	if (a.Subject == nil) != (b.Subject == nil) {
		return false
	}
	return a.Subject == nil || *a.Subject == *b.Subject
}

package unreadsync

import (
	"github.com/google/uuid"
)

// AcknowledgeConversation marks a conversation read. The badge drops before
// this returns; the server is told in the background and the change is
// reverted if it refuses.
func (s *Synchronizer) AcknowledgeConversation(conversationID string) {
	s.call(func() { s.acknowledge(conversationID) })
}

func (s *Synchronizer) acknowledge(conversationID string) {
	removed := s.store.MarkRead(conversationID)
	if removed == 0 {
		return
	}

	sequence, ticket := s.counter.Issue()
	token := uuid.NewString()
	s.submit(Proposal{
		Kind:             SourceOptimistic,
		IssuedAtSequence: sequence,
		Ticket:           ticket,
		ConversationID:   conversationID,
		Delta:            -removed,
		Token:            token,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := retry(s.ctx, s.opts.MarkReadAttempts, s.opts.RetryBaseDelay, func() error {
			return s.backend.MarkConversationRead(s.ctx, conversationID)
		})
		s.post(func() { s.completeAcknowledge(token, conversationID, err) })
	}()
}

func (s *Synchronizer) completeAcknowledge(token, conversationID string, err error) {
	if err == nil {
		s.reconciler.Confirm(token)
		return
	}

	restored := s.reconciler.Compensate(token)
	s.log.Warn("mark read failed, compensating",
		"conversationID", conversationID, "restored", restored, "error", err)
	s.issuePull("resync", s.opts.ResyncAttempts, true)
}

package unreadsync

import (
	"fmt"

	"partshub/pkg/errors"
	"partshub/pkg/logger"
)

// pendingAck is an optimistic acknowledgement awaiting (or recently given)
// server confirmation.
type pendingAck struct {
	token          string
	conversationID string
	removed        int
	ticket         uint64
	confirmed      bool
	// confirmedTicket is the ticket current when the server confirmed; pulls
	// issued after it have observed the acknowledgement.
	confirmedTicket uint64
}

// Reconciler is the only writer of the Counter. It decides whether a proposal
// commits and keeps optimistic acknowledgements alive across snapshots.
type Reconciler struct {
	counter *Counter
	store   *Store
	pending map[string]*pendingAck
	log     *logger.Logger
}

func NewReconciler(counter *Counter, store *Store, log *logger.Logger) *Reconciler {
	return &Reconciler{
		counter: counter,
		store:   store,
		pending: make(map[string]*pendingAck),
		log:     log,
	}
}

// Submit commits p or rejects it with a RECONCILIATION_CONFLICT error.
// Rejected proposals leave the state untouched.
func (r *Reconciler) Submit(p Proposal) error {
	switch p.Kind {
	case SourcePull:
		return r.applyPull(p)
	case SourcePush:
		r.applyPush(p)
		return nil
	case SourceOptimistic:
		r.applyOptimistic(p)
		return nil
	}
	return errors.ReconciliationConflict(fmt.Sprintf("unknown proposal kind %d", p.Kind))
}

func (r *Reconciler) applyPull(p Proposal) error {
	if r.counter.supersededBy(p.Ticket) {
		err := errors.ReconciliationConflict(fmt.Sprintf(
			"pull issued at sequence %d superseded by a later authoritative update", p.IssuedAtSequence))
		r.log.Debug("pull discarded", "issuedAtSequence", p.IssuedAtSequence, "ticket", p.Ticket,
			"sequence", r.counter.sequence, "total", p.Total)
		return err
	}

	r.store.Replace(p.Conversations)
	total := p.Total

	// The snapshot may predate acknowledgements the server has not confirmed
	// yet, or confirmed after this pull was issued. Re-apply them.
	for token, ack := range r.pending {
		if ack.confirmed && p.Ticket > ack.confirmedTicket {
			delete(r.pending, token)
			continue
		}
		if removed := r.store.MarkRead(ack.conversationID); removed > 0 {
			total -= removed
			ack.removed = removed
		}
	}

	r.counter.commit(SourcePull, total, p.Ticket)
	return nil
}

func (r *Reconciler) applyPush(p Proposal) {
	for token, ack := range r.pending {
		if ack.conversationID == p.ConversationID {
			delete(r.pending, token)
		}
	}
	r.counter.commit(SourcePush, p.Total, p.Ticket)
}

func (r *Reconciler) applyOptimistic(p Proposal) {
	if p.Token != "" {
		r.pending[p.Token] = &pendingAck{
			token:          p.Token,
			conversationID: p.ConversationID,
			removed:        -p.Delta,
			ticket:         p.Ticket,
		}
	}
	r.counter.commit(SourceOptimistic, r.counter.total+p.Delta, p.Ticket)
}

// Confirm records that the server accepted the acknowledgement behind token.
func (r *Reconciler) Confirm(token string) {
	ack, ok := r.pending[token]
	if !ok {
		return
	}
	_, ack.confirmedTicket = r.counter.Issue()
	ack.confirmed = true
}

// Compensate reverts the acknowledgement behind token if it is still in
// effect. It reports whether anything was restored.
func (r *Reconciler) Compensate(token string) bool {
	ack, ok := r.pending[token]
	if !ok {
		return false
	}
	delete(r.pending, token)
	if !r.store.Restore(ack.conversationID, ack.removed) {
		return false
	}
	_, ticket := r.counter.Issue()
	r.counter.commit(SourceOptimistic, r.counter.total+ack.removed, ticket)
	return true
}

// Pending returns the number of acknowledgements still tracked.
func (r *Reconciler) Pending() int {
	return len(r.pending)
}

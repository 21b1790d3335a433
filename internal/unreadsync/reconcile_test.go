package unreadsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partshub/internal/domain/entity"
	"partshub/pkg/errors"
	"partshub/pkg/logger"
)

func newTestReconciler() (*Reconciler, *Counter, *Store) {
	counter := NewCounter()
	store := NewStore()
	return NewReconciler(counter, store, logger.Nop()), counter, store
}

func pullProposal(c *Counter, conversations ...entity.ConversationSummary) Proposal {
	sequence, ticket := c.Issue()
	s := summaryOf(conversations...)
	return Proposal{Kind: SourcePull, IssuedAtSequence: sequence, Ticket: ticket, Total: s.Total, Conversations: s.Conversations}
}

func TestCounterIssueDoesNotAdvanceSequence(t *testing.T) {
	c := NewCounter()

	s1, t1 := c.Issue()
	s2, t2 := c.Issue()

	assert.Equal(t, uint64(0), s1)
	assert.Equal(t, s1, s2)
	assert.Greater(t, t2, t1)
	assert.Equal(t, State{}, c.State())
}

func TestCounterCommitClampsAtZero(t *testing.T) {
	c := NewCounter()
	c.commit(SourceOptimistic, -4, 0)

	assert.Equal(t, State{Total: 0, Sequence: 1, LastUpdateSource: SourceOptimistic}, c.State())
}

func TestReconcilerRejectsPullIssuedBeforeCommittedPush(t *testing.T) {
	r, counter, _ := newTestReconciler()

	stale := pullProposal(counter, conv("x", 5, 1))
	_, pushTicket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourcePush, Ticket: pushTicket, ConversationID: "x", Total: 7}))

	err := r.Submit(stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeReconciliationConflict))
	assert.Equal(t, State{Total: 7, Sequence: 1, LastUpdateSource: SourcePush}, counter.State())
}

func TestReconcilerAcceptsPullsInIssueOrderOnly(t *testing.T) {
	r, counter, store := newTestReconciler()

	first := pullProposal(counter, conv("x", 1, 1))
	second := pullProposal(counter, conv("x", 3, 1))

	require.NoError(t, r.Submit(second))
	assert.Error(t, r.Submit(first))
	assert.Equal(t, 3, counter.Total())
	assert.Equal(t, 3, store.Unread("x"))
}

func TestReconcilerOptimisticDeltaIsClamped(t *testing.T) {
	r, counter, _ := newTestReconciler()
	require.NoError(t, r.Submit(pullProposal(counter, conv("x", 1, 1))))

	_, ticket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourceOptimistic, Ticket: ticket, ConversationID: "x", Delta: -3}))

	assert.Equal(t, 0, counter.Total())
	assert.Equal(t, SourceOptimistic, counter.State().LastUpdateSource)
}

func TestReconcilerRebasesPendingAcknowledgementOntoPull(t *testing.T) {
	r, counter, store := newTestReconciler()
	require.NoError(t, r.Submit(pullProposal(counter, conv("x", 2, 1), conv("y", 3, 2))))

	inflight := pullProposal(counter, conv("x", 2, 1), conv("y", 3, 2))

	removed := store.MarkRead("x")
	_, ticket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourceOptimistic, Ticket: ticket, ConversationID: "x", Delta: -removed, Token: "tok"}))
	assert.Equal(t, 3, counter.Total())

	require.NoError(t, r.Submit(inflight))
	assert.Equal(t, 3, counter.Total(), "snapshot taken before the acknowledgement must not revert it")
	assert.Equal(t, 0, store.Unread("x"))
	assert.Equal(t, 1, r.Pending())
}

func TestReconcilerDropsConfirmedAcknowledgementAfterLaterPull(t *testing.T) {
	r, counter, store := newTestReconciler()
	require.NoError(t, r.Submit(pullProposal(counter, conv("x", 2, 1))))

	store.MarkRead("x")
	_, ticket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourceOptimistic, Ticket: ticket, ConversationID: "x", Delta: -2, Token: "tok"}))
	r.Confirm("tok")

	// New message after the read: the server now reports 1.
	require.NoError(t, r.Submit(pullProposal(counter, conv("x", 1, 0))))
	assert.Equal(t, 1, counter.Total())
	assert.Equal(t, 0, r.Pending())
}

func TestReconcilerPushSupersedesPendingAcknowledgement(t *testing.T) {
	r, counter, store := newTestReconciler()
	require.NoError(t, r.Submit(pullProposal(counter, conv("x", 2, 1))))

	store.MarkRead("x")
	_, ticket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourceOptimistic, Ticket: ticket, ConversationID: "x", Delta: -2, Token: "tok"}))

	_, pushTicket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourcePush, Ticket: pushTicket, ConversationID: "x", Total: 0}))

	assert.False(t, r.Compensate("tok"), "nothing left to compensate once a push owns the conversation")
	assert.Equal(t, 0, counter.Total())
}

func TestReconcilerCompensateRestoresAcknowledgement(t *testing.T) {
	r, counter, store := newTestReconciler()
	require.NoError(t, r.Submit(pullProposal(counter, conv("x", 2, 1), conv("y", 3, 2))))

	removed := store.MarkRead("x")
	_, ticket := counter.Issue()
	require.NoError(t, r.Submit(Proposal{Kind: SourceOptimistic, Ticket: ticket, ConversationID: "x", Delta: -removed, Token: "tok"}))

	assert.True(t, r.Compensate("tok"))
	assert.Equal(t, 5, counter.Total())
	assert.Equal(t, 2, store.Unread("x"))
	assert.False(t, r.Compensate("tok"), "compensation runs once per token")
}

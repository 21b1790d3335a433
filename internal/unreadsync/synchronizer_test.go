package unreadsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partshub/internal/domain/entity"
	"partshub/pkg/errors"
)

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSubscribersStartFromNeutralState(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	totals := &recorder[int]{}
	lists := &recorder[[]entity.ConversationSummary]{}
	statuses := &recorder[Status]{}

	s.SubscribeTotal(totals.record)
	s.SubscribeConversations(lists.record)
	s.SubscribeStatus(statuses.record)

	assert.Equal(t, []int{0}, totals.snapshot())
	require.Len(t, lists.snapshot(), 1)
	assert.Empty(t, lists.snapshot()[0])
	require.Len(t, statuses.snapshot(), 1)
	assert.True(t, statuses.snapshot()[0].Healthy())
	assert.Equal(t, State{}, s.State())
}

func TestFirstSubscriptionIssuesInitialPull(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	lists := &recorder[[]entity.ConversationSummary]{}
	s.SubscribeConversations(lists.record)

	backend.nextPull(t).respond(summaryOf(conv("x", 0, 30), conv("y", 2, 10)))
	waitTotal(t, s, 2)

	assert.Equal(t, State{Total: 2, Sequence: 1, LastUpdateSource: SourcePull}, s.State())
	got := lists.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"y", "x"}, ids(got[1]))
	assert.Equal(t, []string{"y"}, ids(s.Conversations(1)))
}

func TestConcurrentSurfacesShareOnePull(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	s.SubscribeTotal(func(int) {})
	s.SubscribeConversations(func([]entity.ConversationSummary) {})
	s.RequestRefresh()
	s.RequestRefresh()
	s.RequestRefresh()
	barrier(s)

	call := backend.nextPull(t)
	backend.assertNoPull(t)
	assert.Equal(t, 1, backend.fetchCount())

	call.respond(summaryOf(conv("x", 3, 1)))
	waitTotal(t, s, 3)
}

func TestAcknowledgeThenPushCorrectsTotal(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	totals := &recorder[int]{}
	s.SubscribeTotal(totals.record)
	backend.nextPull(t).respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	waitTotal(t, s, 5)

	s.AcknowledgeConversation("x")
	assert.Equal(t, 3, s.State().Total)
	assert.Equal(t, SourceOptimistic, s.State().LastUpdateSource)

	push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 1, LastActivityAt: baseTime.Add(time.Minute)})

	assert.Equal(t, 4, s.State().Total)
	assert.Equal(t, SourcePush, s.State().LastUpdateSource)
	assert.Equal(t, []int{0, 5, 3, 4}, totals.snapshot())
}

func TestSlowPullIsDiscardedAfterPush(t *testing.T) {
	backend := newHeldBackend()
	s, m := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	slow := backend.nextPull(t)

	push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 7, LastActivityAt: baseTime})
	assert.Equal(t, 7, s.State().Total)

	slow.respond(summaryOf(conv("x", 5, 10)))
	settle(t, s)

	assert.Equal(t, State{Total: 7, Sequence: 1, LastUpdateSource: SourcePush}, s.State())
	assert.Equal(t, float64(1), proposals(m, SourcePull, "rejected"))
	list := s.Conversations(0)
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].UnreadCount)
}

func TestOutOfOrderPullsKeepLatestIssued(t *testing.T) {
	backend := newHeldBackend()
	s, m := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	first := backend.nextPull(t)

	push(s, entity.UnreadEvent{ConversationID: "y", UnreadCountForConversation: 1, LastActivityAt: baseTime})

	// The in-flight pull can no longer commit, so a refresh issues a new one.
	s.RequestRefresh()
	second := backend.nextPull(t)

	second.respond(summaryOf(conv("x", 4, 2), conv("y", 5, 0)))
	waitTotal(t, s, 9)

	first.respond(summaryOf(conv("x", 5, 10)))
	require.Eventually(t, func() bool {
		return proposals(m, SourcePull, "rejected") == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, State{Total: 9, Sequence: 2, LastUpdateSource: SourcePull}, s.State())
}

func TestDuplicatePushIsIdempotent(t *testing.T) {
	backend := newAutoBackend(summaryOf())
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	settle(t, s)

	ev := entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 3, LastActivityAt: baseTime, LastMessagePreview: "is it OEM?"}
	push(s, ev)
	push(s, ev)

	state := s.State()
	assert.Equal(t, 3, state.Total)
	assert.Equal(t, uint64(3), state.Sequence, "every push commits")
	list := s.Conversations(0)
	require.Len(t, list, 1)
	assert.Equal(t, "is it OEM?", list[0].LastMessagePreview)
	assert.Equal(t, 3, list[0].UnreadCount)
}

func TestDuplicatePushAfterAcknowledgeKeepsConversationRead(t *testing.T) {
	backend := newAutoBackend(summaryOf(conv("x", 0, 5)))
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	settle(t, s)

	ev := entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 2, LastActivityAt: baseTime}
	push(s, ev)
	assert.Equal(t, 2, s.State().Total)

	s.AcknowledgeConversation("x")
	assert.Equal(t, 0, s.State().Total)

	push(s, ev)
	assert.Equal(t, 0, s.State().Total)

	require.Eventually(t, func() bool { return backend.markCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	barrier(s)
	assert.Equal(t, 0, s.State().Total)
	list := s.Conversations(0)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].UnreadCount)

	// The server's own read echo carries the same activity time and still applies.
	push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 0, LastActivityAt: baseTime})
	assert.Equal(t, 0, s.State().Total)

	// A genuinely new message is strictly later.
	push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 1, LastActivityAt: baseTime.Add(time.Minute)})
	assert.Equal(t, 1, s.State().Total)
}

func TestStalePushDoesNotRewindConversation(t *testing.T) {
	backend := newAutoBackend(summaryOf(conv("x", 2, 0)))
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	waitTotal(t, s, 2)

	push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 1, LastActivityAt: baseTime.Add(-time.Hour)})

	assert.Equal(t, 2, s.State().Total)
}

func TestNextPullCorrectsOptimisticAcknowledgement(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	backend.nextPull(t).respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	waitTotal(t, s, 5)

	s.AcknowledgeConversation("x")
	assert.Equal(t, 3, s.State().Total)

	require.Eventually(t, func() bool {
		confirmed := false
		s.call(func() {
			for _, ack := range s.reconciler.pending {
				confirmed = ack.confirmed
			}
		})
		return confirmed
	}, 2*time.Second, 5*time.Millisecond)

	s.RequestRefresh()
	backend.nextPull(t).respond(summaryOf(conv("x", 0, 1), conv("y", 4, 0)))
	waitTotal(t, s, 4)

	assert.Equal(t, SourcePull, s.State().LastUpdateSource)
	s.call(func() { assert.Equal(t, 0, s.reconciler.Pending()) })
}

func TestInFlightPullDoesNotRevertAcknowledgement(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	backend.nextPull(t).respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	waitTotal(t, s, 5)

	s.RequestRefresh()
	inflight := backend.nextPull(t)

	s.AcknowledgeConversation("x")
	assert.Equal(t, 3, s.State().Total)

	inflight.respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	settle(t, s)

	assert.Equal(t, 3, s.State().Total)
	assert.Equal(t, SourcePull, s.State().LastUpdateSource)
	for _, c := range s.Conversations(0) {
		if c.ID == "x" {
			assert.Equal(t, 0, c.UnreadCount)
		}
	}
}

func TestAcknowledgeReadConversationIsNoop(t *testing.T) {
	backend := newAutoBackend(summaryOf(conv("x", 0, 1)))
	s, _ := newTestSynchronizer(t, backend, nil)
	s.SubscribeTotal(func(int) {})
	settle(t, s)
	before := s.State()

	s.AcknowledgeConversation("x")
	s.AcknowledgeConversation("unknown")

	assert.Equal(t, before, s.State())
	assert.Equal(t, 0, backend.markCount())
}

func TestFailedAcknowledgementIsCompensated(t *testing.T) {
	backend := newHeldBackend()
	backend.markRead = func(ctx context.Context, id string) error {
		return fmt.Errorf("503 from upstream")
	}
	s, m := newTestSynchronizer(t, backend, nil)

	totals := &recorder[int]{}
	s.SubscribeTotal(totals.record)
	backend.nextPull(t).respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	waitTotal(t, s, 5)

	s.AcknowledgeConversation("x")
	assert.Equal(t, 3, s.State().Total)

	resync := backend.nextPull(t)
	assert.Equal(t, 3, backend.markCount(), "mark read is retried before giving up")
	waitTotal(t, s, 5)

	resync.respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	settle(t, s)

	assert.Equal(t, 5, s.State().Total)
	assert.True(t, s.Status().Healthy())
	assert.Equal(t, []int{0, 5, 3, 5}, totals.snapshot())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Compensations.WithLabelValues("ok")))
}

func TestCompensationFailureIsReported(t *testing.T) {
	backend := newHeldBackend()
	backend.markRead = func(ctx context.Context, id string) error {
		return fmt.Errorf("connection reset")
	}
	s, _ := newTestSynchronizer(t, backend, nil)

	statuses := &recorder[Status]{}
	s.SubscribeStatus(statuses.record)
	s.SubscribeTotal(func(int) {})
	backend.nextPull(t).respond(summaryOf(conv("x", 2, 1)))
	waitTotal(t, s, 2)

	s.AcknowledgeConversation("x")
	for i := 0; i < 3; i++ {
		backend.nextPull(t).fail(fmt.Errorf("offline"))
	}

	require.Eventually(t, func() bool {
		return s.Status().Code() == errors.CodeCompensationFailure
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, s.State().Total, "the restored value stays on screen")

	got := statuses.snapshot()
	assert.Equal(t, errors.CodeCompensationFailure, got[len(got)-1].Code())
}

func TestCompensationSkipsConversationOwnedByPush(t *testing.T) {
	release := make(chan struct{})
	backend := newHeldBackend()
	backend.markRead = func(ctx context.Context, id string) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return backoffPermanent(fmt.Errorf("forbidden"))
	}
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	backend.nextPull(t).respond(summaryOf(conv("x", 2, 1), conv("y", 3, 5)))
	waitTotal(t, s, 5)

	s.AcknowledgeConversation("x")
	push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 4, LastActivityAt: baseTime})
	assert.Equal(t, 7, s.State().Total)

	close(release)
	resync := backend.nextPull(t)
	barrier(s)
	assert.Equal(t, 7, s.State().Total)

	resync.respond(summaryOf(conv("x", 4, 0), conv("y", 3, 5)))
	settle(t, s)
	assert.Equal(t, 7, s.State().Total)
	assert.Equal(t, 1, backend.markCount(), "permanent errors are not retried")
}

func TestPullFailureKeepsLastKnownTotal(t *testing.T) {
	backend := newHeldBackend()
	s, m := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	backend.nextPull(t).respond(summaryOf(conv("x", 5, 1)))
	waitTotal(t, s, 5)

	s.RequestRefresh()
	backend.nextPull(t).fail(fmt.Errorf("timeout"))
	backend.nextPull(t).fail(fmt.Errorf("timeout"))
	settle(t, s)
	backend.assertNoPull(t)

	assert.Equal(t, errors.CodeTransientNetwork, s.Status().Code())
	assert.Equal(t, 5, s.State().Total)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PullsTotal.WithLabelValues("error")))

	s.RequestRefresh()
	backend.nextPull(t).respond(summaryOf(conv("x", 6, 0)))
	waitTotal(t, s, 6)
	assert.True(t, s.Status().Healthy())
}

func TestVisibilityRefreshesOncePerTransition(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) {})
	backend.nextPull(t).respond(summaryOf())
	settle(t, s)

	s.SetVisible(false)
	s.SetVisible(true)
	call := backend.nextPull(t)

	s.SetVisible(false)
	s.SetVisible(true)
	barrier(s)
	backend.assertNoPull(t)
	s.call(func() { assert.Equal(t, visibilityPendingRefresh, s.visibility) })

	call.respond(summaryOf(conv("x", 1, 0)))
	waitTotal(t, s, 1)
	s.call(func() { assert.Equal(t, visibilityIdle, s.visibility) })

	// With a non-zero badge, returning to the foreground does not refresh.
	s.SetVisible(false)
	s.SetVisible(true)
	barrier(s)
	backend.assertNoPull(t)
}

func TestPushActorReconnectsAndResyncs(t *testing.T) {
	backend := newAutoBackend(summaryOf(conv("x", 2, 1)))
	channel := newFakeChannel(1)
	s, _ := newTestSynchronizer(t, backend, channel)

	statuses := &recorder[Status]{}
	s.SubscribeStatus(statuses.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	conn := channel.nextConn(t)
	waitTotal(t, s, 2)

	codes := func() []string {
		var out []string
		for _, st := range statuses.snapshot() {
			out = append(out, st.Code())
		}
		return out
	}
	require.Eventually(t, func() bool {
		got := codes()
		return len(got) >= 3 && got[len(got)-1] == ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, codes(), errors.CodeChannelDisconnected)

	conn <- entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: 5, LastActivityAt: baseTime.Add(time.Minute)}
	waitTotal(t, s, 5)

	backend.setSummary(summaryOf(conv("x", 6, 0)))
	fetches := backend.fetchCount()
	close(conn)

	channel.nextConn(t)
	require.Eventually(t, func() bool { return backend.fetchCount() > fetches }, 2*time.Second, 5*time.Millisecond)
	waitTotal(t, s, 6)
	require.Eventually(t, func() bool { return s.Status().Healthy() }, 2*time.Second, 5*time.Millisecond)
}

func TestConnectJoinsPullIssuedAfterSubscribeBegan(t *testing.T) {
	backend := newHeldBackend()
	channel := newFakeChannel(0)
	s, _ := newTestSynchronizer(t, backend, channel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	initial := backend.nextPull(t)
	conn := channel.nextConn(t)
	s.SubscribeTotal(func(int) {})
	backend.assertNoPull(t)

	initial.respond(summaryOf(conv("x", 2, 1)))
	waitTotal(t, s, 2)
	settle(t, s)

	// After a drop, the pull in flight (none here) cannot cover the gap.
	close(conn)
	channel.nextConn(t)
	backend.nextPull(t).respond(summaryOf(conv("x", 3, 0)))
	waitTotal(t, s, 3)
}

func TestListenerPanicIsContained(t *testing.T) {
	backend := newAutoBackend(summaryOf(conv("x", 4, 1)))
	s, _ := newTestSynchronizer(t, backend, nil)

	s.SubscribeTotal(func(int) { panic("bad surface") })
	totals := &recorder[int]{}
	s.SubscribeTotal(totals.record)

	waitTotal(t, s, 4)
	require.Eventually(t, func() bool {
		got := totals.snapshot()
		return len(got) > 0 && got[len(got)-1] == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	backend := newHeldBackend()
	s, _ := newTestSynchronizer(t, backend, nil)

	totals := &recorder[int]{}
	unsubscribe := s.SubscribeTotal(totals.record)
	call := backend.nextPull(t)

	unsubscribe()
	unsubscribe()
	call.respond(summaryOf(conv("x", 3, 1)))
	waitTotal(t, s, 3)
	barrier(s)

	assert.Equal(t, []int{0}, totals.snapshot())
}

func TestListenersSeeCommitsInOrder(t *testing.T) {
	backend := newAutoBackend(summaryOf())
	s, _ := newTestSynchronizer(t, backend, nil)

	var mu sync.Mutex
	var a, b []int
	s.SubscribeTotal(func(v int) { mu.Lock(); a = append(a, v); mu.Unlock() })
	s.SubscribeTotal(func(v int) { mu.Lock(); b = append(b, v); mu.Unlock() })
	settle(t, s)

	for i := 1; i <= 5; i++ {
		push(s, entity.UnreadEvent{ConversationID: "x", UnreadCountForConversation: i, LastActivityAt: baseTime.Add(time.Duration(i) * time.Second)})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, a)
	assert.Equal(t, a, b)
}

func TestCloseIsIdempotentAndStopsWork(t *testing.T) {
	backend := newHeldBackend()
	s, err := New(Options{Backend: backend, RetryBaseDelay: time.Millisecond})
	require.NoError(t, err)

	s.SubscribeTotal(func(int) {})
	backend.nextPull(t)

	s.Close()
	s.Close()

	unsubscribe := s.SubscribeTotal(func(int) {})
	unsubscribe()
	s.AcknowledgeConversation("x")
	s.RequestRefresh()
	s.SetVisible(false)
	assert.Equal(t, State{}, s.State())
}

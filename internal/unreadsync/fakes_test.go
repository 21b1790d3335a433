package unreadsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"partshub/internal/domain/entity"
	"partshub/internal/metrics"
)

type pullResult struct {
	summary *entity.UnreadSummary
	err     error
}

type pullCall struct {
	reply chan pullResult
}

func (c *pullCall) respond(summary *entity.UnreadSummary) {
	c.reply <- pullResult{summary: summary}
}

func (c *pullCall) fail(err error) {
	c.reply <- pullResult{err: err}
}

// fakeBackend either answers pulls immediately with summary, or (hold) hands
// every pull to the test through pulls.
type fakeBackend struct {
	mu       sync.Mutex
	hold     bool
	summary  *entity.UnreadSummary
	pulls    chan *pullCall
	fetches  int
	markRead func(ctx context.Context, id string) error
	marked   []string
}

func newHeldBackend() *fakeBackend {
	return &fakeBackend{hold: true, pulls: make(chan *pullCall, 32)}
}

func newAutoBackend(summary *entity.UnreadSummary) *fakeBackend {
	return &fakeBackend{summary: summary, pulls: make(chan *pullCall, 32)}
}

func (b *fakeBackend) FetchUnreadSummary(ctx context.Context) (*entity.UnreadSummary, error) {
	b.mu.Lock()
	b.fetches++
	hold, summary := b.hold, b.summary
	b.mu.Unlock()

	if !hold {
		return summary, nil
	}

	call := &pullCall{reply: make(chan pullResult, 1)}
	b.pulls <- call
	select {
	case r := <-call.reply:
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *fakeBackend) MarkConversationRead(ctx context.Context, id string) error {
	b.mu.Lock()
	b.marked = append(b.marked, id)
	fn := b.markRead
	b.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, id)
}

func (b *fakeBackend) setSummary(summary *entity.UnreadSummary) {
	b.mu.Lock()
	b.summary = summary
	b.mu.Unlock()
}

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func (b *fakeBackend) markCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.marked)
}

func (b *fakeBackend) nextPull(t *testing.T) *pullCall {
	t.Helper()
	select {
	case c := <-b.pulls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a pull")
		return nil
	}
}

func (b *fakeBackend) assertNoPull(t *testing.T) {
	t.Helper()
	select {
	case <-b.pulls:
		t.Fatal("unexpected pull")
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeChannel fails the first failures subscriptions, then hands each
// connection's event stream to the test through conns.
type fakeChannel struct {
	mu         sync.Mutex
	failures   int
	subscribes int
	conns      chan chan entity.UnreadEvent
}

func newFakeChannel(failures int) *fakeChannel {
	return &fakeChannel{failures: failures, conns: make(chan chan entity.UnreadEvent, 8)}
}

func (c *fakeChannel) Subscribe(ctx context.Context) (<-chan entity.UnreadEvent, error) {
	c.mu.Lock()
	c.subscribes++
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("dial refused")
	}
	events := make(chan entity.UnreadEvent, 8)
	c.conns <- events
	return events, nil
}

func (c *fakeChannel) nextConn(t *testing.T) chan entity.UnreadEvent {
	t.Helper()
	select {
	case conn := <-c.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a subscription")
		return nil
	}
}

type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

func newTestSynchronizer(t *testing.T, backend Backend, channel Channel) (*Synchronizer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	s, err := New(Options{
		Backend:             backend,
		Channel:             channel,
		Metrics:             m,
		RetryBaseDelay:      time.Millisecond,
		ResubscribeMaxDelay: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, m
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func conv(id string, unread int, minutesAgo int) entity.ConversationSummary {
	return entity.ConversationSummary{
		ID:                 id,
		Participants:       entity.Participants{BuyerID: "buyer-1", SellerID: "seller-" + id},
		LastMessagePreview: "about " + id,
		LastActivityAt:     baseTime.Add(-time.Duration(minutesAgo) * time.Minute),
		UnreadCount:        unread,
	}
}

func summaryOf(conversations ...entity.ConversationSummary) *entity.UnreadSummary {
	total := 0
	for _, c := range conversations {
		total += c.UnreadCount
	}
	return &entity.UnreadSummary{Total: total, Conversations: conversations}
}

// push delivers ev the way the push actor does and waits for the commit.
func push(s *Synchronizer, ev entity.UnreadEvent) {
	s.call(func() { s.applyEvent(ev) })
}

func barrier(s *Synchronizer) {
	s.call(func() {})
}

func waitTotal(t *testing.T, s *Synchronizer, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().Total == want }, 2*time.Second, 5*time.Millisecond,
		"total never reached %d", want)
}

// settle waits until no pull is in flight.
func settle(t *testing.T, s *Synchronizer) {
	t.Helper()
	require.Eventually(t, func() bool {
		idle := false
		s.call(func() { idle = s.flight == nil })
		return idle
	}, 2*time.Second, 5*time.Millisecond)
}

func proposals(m *metrics.Metrics, kind Source, outcome string) float64 {
	return testutil.ToFloat64(m.ProposalsTotal.WithLabelValues(kind.String(), outcome))
}

func backoffPermanent(err error) error {
	return backoff.Permanent(err)
}

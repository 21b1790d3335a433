package unreadsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"partshub/internal/domain/entity"
	"partshub/internal/metrics"
	"partshub/pkg/logger"
)

type Options struct {
	Backend Backend
	// Channel is optional; without it the synchronizer relies on pulls only.
	Channel Channel
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	// RefreshInterval is the periodic pull interval while visible. Zero
	// disables periodic refresh.
	RefreshInterval time.Duration

	PullAttempts     int
	MarkReadAttempts int
	ResyncAttempts   int
	RetryBaseDelay   time.Duration
	// ResubscribeMaxDelay caps the realtime reconnect backoff.
	ResubscribeMaxDelay time.Duration
}

func (o *Options) withDefaults() {
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.PullAttempts <= 0 {
		o.PullAttempts = 2
	}
	if o.MarkReadAttempts <= 0 {
		o.MarkReadAttempts = 3
	}
	if o.ResyncAttempts <= 0 {
		o.ResyncAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 500 * time.Millisecond
	}
	if o.ResubscribeMaxDelay <= 0 {
		o.ResubscribeMaxDelay = 30 * time.Second
	}
}

type snapshot struct {
	state         State
	conversations []entity.ConversationSummary
	status        Status
}

// Synchronizer owns the unread state of one signed-in viewer. Create it at
// session start and Close it at sign-out.
//
// Every mutation runs on a single loop goroutine. Subscriber callbacks run on
// that goroutine too, in commit order; they must not call Close or the
// blocking Subscribe*/AcknowledgeConversation methods.
type Synchronizer struct {
	opts    Options
	backend Backend
	channel Channel
	log     *logger.Logger
	metrics *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	queue     []func()
	closed    bool
	wake      chan struct{}
	stopped   chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	latest    atomic.Pointer[snapshot]

	// Loop-owned state below.
	counter    *Counter
	store      *Store
	reconciler *Reconciler

	flight            *pullFlight
	pullsIssued       int
	initialPullIssued bool
	subscribeMark     uint64
	visible           bool
	visibility        visibilityState
	status            Status
	statusDirty       bool
	totalSubs         subscribers[int]
	conversationSubs  subscribers[[]entity.ConversationSummary]
	statusSubs        subscribers[Status]
	notifiedTotal     int
	notifiedVersion   uint64
}

func New(opts Options) (*Synchronizer, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("unreadsync: backend is required")
	}
	opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	log := opts.Logger.With("component", "UnreadSynchronizer")
	counter := NewCounter()
	store := NewStore()

	s := &Synchronizer{
		opts:       opts,
		backend:    opts.Backend,
		channel:    opts.Channel,
		log:        log,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		counter:    counter,
		store:      store,
		reconciler: NewReconciler(counter, store, log),
		visible:    true,
	}
	s.latest.Store(&snapshot{conversations: []entity.ConversationSummary{}})

	go s.run()
	return s, nil
}

// Start connects the realtime channel, starts periodic refresh and issues the
// initial pull if no surface has done so yet. It returns immediately; the
// sources stop when ctx ends or the synchronizer is closed.
func (s *Synchronizer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		context.AfterFunc(s.ctx, cancel)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			cancel()
			return
		}
		if s.channel != nil {
			s.enqueue(s.markSubscribe)
			s.wg.Add(1)
			go s.runPush(runCtx)
		}
		if s.opts.RefreshInterval > 0 {
			s.wg.Add(1)
			go s.runTicker(runCtx)
		}
		s.enqueue(s.ensureInitialPull)
	})
}

// Close stops the loop and waits for every background goroutine. In-flight
// requests are cancelled.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		s.cancel()
		<-s.stopped
		s.wg.Wait()
	})
}

// State returns the last committed state.
func (s *Synchronizer) State() State {
	return s.latest.Load().state
}

// Status returns the last reported source health.
func (s *Synchronizer) Status() Status {
	return s.latest.Load().status
}

// Conversations returns up to limit conversations in priority order as of the
// last commit.
func (s *Synchronizer) Conversations(limit int) []entity.ConversationSummary {
	list := s.latest.Load().conversations
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return cloneList(list)
}

// RequestRefresh asks for an authoritative pull. Concurrent requests share
// one in-flight pull.
func (s *Synchronizer) RequestRefresh() {
	s.post(func() { s.requestPull("refresh") })
}

func (s *Synchronizer) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for _, fn := range s.drain() {
			if s.ctx.Err() != nil {
				return
			}
			fn()
			s.publish()
		}
	}
}

func (s *Synchronizer) runTicker(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.post(func() {
				if s.visible {
					s.requestPull("periodic")
				}
			})
		}
	}
}

// post queues fn for the loop. It never blocks and reports false once closed.
func (s *Synchronizer) post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueue(fn)
}

// enqueue requires s.mu.
func (s *Synchronizer) enqueue(fn func()) bool {
	if s.closed {
		return false
	}
	s.queue = append(s.queue, fn)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for it. It reports false if the
// synchronizer stopped first.
func (s *Synchronizer) call(fn func()) bool {
	done := make(chan struct{})
	if !s.post(func() {
		fn()
		s.publish()
		close(done)
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Synchronizer) drain() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// submit hands p to the reconciler and records the outcome.
func (s *Synchronizer) submit(p Proposal) bool {
	err := s.reconciler.Submit(p)
	s.metrics.ObserveProposal(p.Kind.String(), err == nil)
	if err != nil {
		s.log.Info("proposal rejected", "kind", p.Kind.String(), "issuedAtSequence", p.IssuedAtSequence, "error", err)
		return false
	}
	return true
}

func (s *Synchronizer) setStatus(err error) {
	s.status = Status{Err: err, At: time.Now()}
	s.statusDirty = true
}

// clearStatus returns to healthy if the current status carries one of codes.
func (s *Synchronizer) clearStatus(codes ...string) {
	current := s.status.Code()
	for _, code := range codes {
		if current == code {
			s.status = Status{At: time.Now()}
			s.statusDirty = true
			return
		}
	}
}

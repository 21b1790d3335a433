package unreadsync

import (
	"partshub/internal/domain/entity"
	"partshub/pkg/errors"
)

type pullFlight struct {
	sequence uint64
	ticket   uint64
	reason   string
	// resync pulls follow a failed acknowledgement; exhausting them is a
	// compensation failure rather than a transient one.
	resync bool
	onDone []func(ok bool)
}

func (f *pullFlight) finish(ok bool) {
	for _, fn := range f.onDone {
		fn(ok)
	}
	f.onDone = nil
}

// ensureInitialPull issues the first pull of the session once.
func (s *Synchronizer) ensureInitialPull() {
	if s.initialPullIssued {
		return
	}
	s.requestPull("initial")
}

// requestPull joins the in-flight pull while it can still commit; once an
// authoritative update issued after it has landed, a fresh pull is issued.
func (s *Synchronizer) requestPull(reason string) *pullFlight {
	if f := s.flight; f != nil && !s.counter.supersededBy(f.ticket) {
		s.log.Debug("pull joined", "reason", reason, "inflightReason", f.reason)
		return f
	}
	return s.issuePull(reason, s.opts.PullAttempts, false)
}

func (s *Synchronizer) issuePull(reason string, attempts int, resync bool) *pullFlight {
	sequence, ticket := s.counter.Issue()
	f := &pullFlight{sequence: sequence, ticket: ticket, reason: reason, resync: resync}
	s.flight = f
	s.pullsIssued++
	s.initialPullIssued = true

	s.log.Debug("pull issued", "reason", reason, "issuedAtSequence", sequence, "ticket", ticket)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var summary *entity.UnreadSummary
		err := retry(s.ctx, attempts, s.opts.RetryBaseDelay, func() error {
			var err error
			summary, err = s.backend.FetchUnreadSummary(s.ctx)
			return err
		})
		s.post(func() { s.completePull(f, summary, err) })
	}()
	return f
}

func (s *Synchronizer) completePull(f *pullFlight, summary *entity.UnreadSummary, err error) {
	if s.flight == f {
		s.flight = nil
	}

	if err == nil && summary == nil {
		err = errors.Internal("empty unread summary", nil)
	}
	if err != nil {
		s.metrics.ObservePull(false)
		s.log.Warn("unread pull failed", "reason", f.reason, "error", err)
		if f.resync {
			s.metrics.ObserveCompensation(false)
			s.setStatus(errors.CompensationFailure("Unread count could not be restored, refresh to try again", err))
		} else {
			s.setStatus(errors.TransientNetwork("Unread summary is unavailable", err))
		}
		f.finish(false)
		return
	}

	s.metrics.ObservePull(true)
	if f.resync {
		s.metrics.ObserveCompensation(true)
	}
	s.clearStatus(errors.CodeTransientNetwork, errors.CodeCompensationFailure)

	s.submit(Proposal{
		Kind:             SourcePull,
		IssuedAtSequence: f.sequence,
		Ticket:           f.ticket,
		Total:            summary.Total,
		Conversations:    summary.Conversations,
	})
	f.finish(true)
}

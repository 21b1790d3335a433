package unreadsync

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"partshub/internal/domain/entity"
	"partshub/pkg/errors"
)

// runPush is the push actor. It keeps one realtime subscription open,
// reconnecting with capped exponential backoff, and forwards every event to
// the loop as a message.
func (s *Synchronizer) runPush(ctx context.Context) {
	defer s.wg.Done()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryBaseDelay
	b.MaxInterval = s.opts.ResubscribeMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	// Start marks the first attempt before issuing the initial pull.
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			s.post(s.markSubscribe)
		}
		events, err := s.channel.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.post(func() { s.channelDown(err) })
			if !sleep(ctx, b.NextBackOff()) {
				return
			}
			continue
		}

		b.Reset()
		s.post(s.channelUp)

		if !s.forward(ctx, events) {
			return
		}
		s.post(func() { s.channelDown(fmt.Errorf("realtime connection closed")) })
		if !sleep(ctx, b.NextBackOff()) {
			return
		}
	}
}

// forward relays events until the stream closes. It returns false when ctx
// ended first.
func (s *Synchronizer) forward(ctx context.Context, events <-chan entity.UnreadEvent) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() == nil
			}
			s.post(func() { s.applyEvent(ev) })
		}
	}
}

// markSubscribe records where a subscription attempt began in ticket order.
func (s *Synchronizer) markSubscribe() {
	s.subscribeMark = s.counter.lastTicket()
}

// channelUp forces a pull, since events sent while disconnected are gone. A
// pull still in flight that was issued after the attempt began already covers
// that gap and is joined instead.
func (s *Synchronizer) channelUp() {
	s.log.Info("realtime channel connected")
	s.clearStatus(errors.CodeChannelDisconnected)
	if f := s.flight; f != nil && f.ticket > s.subscribeMark && !s.counter.supersededBy(f.ticket) {
		s.log.Debug("pull joined", "reason", "reconnect", "inflightReason", f.reason)
		return
	}
	s.issuePull("reconnect", s.opts.PullAttempts, false)
}

func (s *Synchronizer) channelDown(err error) {
	s.log.Warn("realtime channel disconnected", "error", err)
	s.setStatus(errors.ChannelDisconnected(err))
}

// applyEvent turns an absolute per-conversation count into a PUSH proposal.
// Redelivered events produce a zero delta, even after the conversation was
// acknowledged in between.
func (s *Synchronizer) applyEvent(ev entity.UnreadEvent) {
	if ev.ConversationID == "" {
		return
	}
	sequence, ticket := s.counter.Issue()

	prev := s.store.Unread(ev.ConversationID)
	incoming, ok := s.store.Get(ev.ConversationID)
	if !ok {
		incoming = entity.ConversationSummary{ID: ev.ConversationID}
	}
	incoming.UnreadCount = ev.UnreadCountForConversation
	if !ev.LastActivityAt.IsZero() {
		incoming.LastActivityAt = ev.LastActivityAt
	}
	if ev.LastMessagePreview != "" {
		incoming.LastMessagePreview = ev.LastMessagePreview
	}
	s.store.ApplyPush(incoming)
	delta := s.store.Unread(ev.ConversationID) - prev

	s.submit(Proposal{
		Kind:             SourcePush,
		IssuedAtSequence: sequence,
		Ticket:           ticket,
		ConversationID:   ev.ConversationID,
		Total:            s.counter.Total() + delta,
	})
}

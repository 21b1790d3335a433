// Package unreadsync keeps a viewer's unread-conversation total consistent
// across pulls, server pushes and optimistic local acknowledgements, and fans
// the committed value out to independent UI surfaces.
//
// All state lives on one event loop goroutine owned by a Synchronizer.
// Network calls run on their own goroutines and post their results back.
package unreadsync

import (
	"context"
	"time"

	"partshub/internal/domain/entity"
	"partshub/pkg/errors"
)

// Source identifies where a committed update came from.
type Source int

const (
	SourceNone Source = iota
	SourcePull
	SourcePush
	SourceOptimistic
)

func (s Source) String() string {
	switch s {
	case SourcePull:
		return "PULL"
	case SourcePush:
		return "PUSH"
	case SourceOptimistic:
		return "OPTIMISTIC"
	}
	return "NONE"
}

// authoritative reports whether the source reflects server state.
func (s Source) authoritative() bool {
	return s == SourcePull || s == SourcePush
}

// State is the global unread state as last committed.
type State struct {
	Total            int
	Sequence         uint64
	LastUpdateSource Source
}

// Status is the health of the sources feeding the synchronizer. Err is nil
// while healthy, otherwise an *errors.AppError carrying one of
// errors.CodeTransientNetwork, errors.CodeChannelDisconnected or
// errors.CodeCompensationFailure.
type Status struct {
	Err error
	At  time.Time
}

func (s Status) Healthy() bool { return s.Err == nil }

// Code returns the error code of the current status, or "" when healthy.
func (s Status) Code() string {
	if s.Err == nil {
		return ""
	}
	for _, code := range []string{errors.CodeTransientNetwork, errors.CodeChannelDisconnected, errors.CodeCompensationFailure} {
		if errors.Is(s.Err, code) {
			return code
		}
	}
	return "UNKNOWN"
}

// Proposal is a candidate update submitted to the Reconciler.
type Proposal struct {
	Kind             Source
	IssuedAtSequence uint64
	// Ticket orders proposals by issue time, including proposals that observed
	// the same sequence.
	Ticket uint64

	// Total is the absolute total carried by PULL and PUSH.
	Total int
	// Conversations is the snapshot carried by PULL.
	Conversations []entity.ConversationSummary

	// ConversationID is the conversation touched by PUSH and OPTIMISTIC.
	ConversationID string
	// Delta is the change applied by OPTIMISTIC.
	Delta int
	// Token identifies the pending confirmation of an OPTIMISTIC proposal.
	Token string
}

// Backend is the request/response side of the chat API.
type Backend interface {
	FetchUnreadSummary(ctx context.Context) (*entity.UnreadSummary, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// Channel is the realtime side of the chat API. Subscribe opens one
// connection; the returned stream is closed when that connection ends.
type Channel interface {
	Subscribe(ctx context.Context) (<-chan entity.UnreadEvent, error)
}

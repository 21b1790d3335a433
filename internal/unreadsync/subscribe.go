package unreadsync

import (
	"sync"

	"partshub/internal/domain/entity"
)

type subscriber[T any] struct {
	id int
	fn func(T)
}

// subscribers keeps registration order so every listener sees the same
// sequence of commits.
type subscribers[T any] struct {
	next int
	list []subscriber[T]
}

func (l *subscribers[T]) add(fn func(T)) int {
	l.next++
	l.list = append(l.list, subscriber[T]{id: l.next, fn: fn})
	return l.next
}

func (l *subscribers[T]) remove(id int) {
	for i, sub := range l.list {
		if sub.id == id {
			l.list = append(l.list[:i], l.list[i+1:]...)
			return
		}
	}
}

// SubscribeTotal calls fn with the current total right away and after every
// commit that changes it. The first subscription of a session issues the
// initial pull.
func (s *Synchronizer) SubscribeTotal(fn func(total int)) (unsubscribe func()) {
	var id int
	ok := s.call(func() {
		id = s.totalSubs.add(fn)
		s.deliver(func() { fn(s.counter.Total()) })
		s.ensureInitialPull()
	})
	if !ok {
		return func() {}
	}
	return s.unsubscriber(func() { s.totalSubs.remove(id) })
}

// SubscribeConversations calls fn with the full prioritized list right away
// and after every change to it.
func (s *Synchronizer) SubscribeConversations(fn func([]entity.ConversationSummary)) (unsubscribe func()) {
	var id int
	ok := s.call(func() {
		id = s.conversationSubs.add(fn)
		list := s.store.List(0)
		s.deliver(func() { fn(list) })
		s.ensureInitialPull()
	})
	if !ok {
		return func() {}
	}
	return s.unsubscriber(func() { s.conversationSubs.remove(id) })
}

// SubscribeStatus reports source health: transient network errors, realtime
// disconnects and failed compensations.
func (s *Synchronizer) SubscribeStatus(fn func(Status)) (unsubscribe func()) {
	var id int
	ok := s.call(func() {
		id = s.statusSubs.add(fn)
		status := s.status
		s.deliver(func() { fn(status) })
	})
	if !ok {
		return func() {}
	}
	return s.unsubscriber(func() { s.statusSubs.remove(id) })
}

func (s *Synchronizer) unsubscriber(fn func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() { s.post(fn) })
	}
}

// publish notifies listeners of whatever the last loop step committed and
// refreshes the lock-free snapshot.
func (s *Synchronizer) publish() {
	state := s.counter.State()
	version := s.store.Version()
	prev := s.latest.Load()

	if state.Total != s.notifiedTotal {
		s.notifiedTotal = state.Total
		s.metrics.SetVisibleTotal(state.Total)
		for _, sub := range s.totalSubs.list {
			fn, total := sub.fn, state.Total
			s.deliver(func() { fn(total) })
		}
	}

	conversations := prev.conversations
	if version != s.notifiedVersion {
		s.notifiedVersion = version
		conversations = s.store.List(0)
		for _, sub := range s.conversationSubs.list {
			fn, list := sub.fn, cloneList(conversations)
			s.deliver(func() { fn(list) })
		}
	}

	if s.statusDirty {
		s.statusDirty = false
		for _, sub := range s.statusSubs.list {
			fn, status := sub.fn, s.status
			s.deliver(func() { fn(status) })
		}
	}

	s.latest.Store(&snapshot{state: state, conversations: conversations, status: s.status})
}

// deliver runs a listener, containing any panic to that listener.
func (s *Synchronizer) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("unread listener panicked", "panic", r)
		}
	}()
	fn()
}

func cloneList(list []entity.ConversationSummary) []entity.ConversationSummary {
	out := make([]entity.ConversationSummary, len(list))
	for i, c := range list {
		out[i] = cloneSummary(c)
	}
	return out
}

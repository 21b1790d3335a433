// Package surface holds the presentation adaptors that render the unread
// state: header badge, navbar badge and the conversations dropdown. Surfaces
// only subscribe; they never talk to the network themselves.
package surface

import (
	"strconv"
	"sync"

	"partshub/internal/domain/entity"
	"partshub/internal/unreadsync"
	"partshub/pkg/logger"
)

// Source is the part of the synchronizer surfaces depend on.
type Source interface {
	SubscribeTotal(fn func(total int)) func()
	SubscribeConversations(fn func([]entity.ConversationSummary)) func()
	SubscribeStatus(fn func(unreadsync.Status)) func()
	RequestRefresh()
}

const maxBadgeCount = 99

// BadgeText renders a count the way the badges show it: hidden at zero and
// capped at "99+".
func BadgeText(count int) string {
	switch {
	case count <= 0:
		return ""
	case count > maxBadgeCount:
		return strconv.Itoa(maxBadgeCount) + "+"
	}
	return strconv.Itoa(count)
}

// mount tracks the unsubscribe functions of one mounted surface.
type mount struct {
	mu     sync.Mutex
	unsubs []func()
}

func (m *mount) mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unsubs) > 0
}

func (m *mount) set(unsubs ...func()) {
	m.mu.Lock()
	m.unsubs = unsubs
	m.mu.Unlock()
}

func (m *mount) release() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// Badge is a counter surface. The header and navbar badges differ only in
// where they render.
type Badge struct {
	name string
	log  *logger.Logger

	mount
	value  int
	status unreadsync.Status
}

func NewHeaderBadge(log *logger.Logger) *Badge {
	return newBadge("header", log)
}

func NewNavbarBadge(log *logger.Logger) *Badge {
	return newBadge("navbar", log)
}

func newBadge(name string, log *logger.Logger) *Badge {
	if log == nil {
		log = logger.Nop()
	}
	return &Badge{name: name, log: log.With("surface", name+"_badge")}
}

// Mount subscribes the badge. Mounting twice is a no-op.
func (b *Badge) Mount(src Source) {
	if b.mounted() {
		return
	}
	b.set(
		src.SubscribeTotal(b.onTotal),
		src.SubscribeStatus(b.onStatus),
	)
}

func (b *Badge) Unmount() {
	b.release()
}

func (b *Badge) Value() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *Badge) Text() string {
	return BadgeText(b.Value())
}

// Stale reports whether the shown value may be out of date.
func (b *Badge) Stale() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.status.Healthy()
}

func (b *Badge) onTotal(total int) {
	b.mu.Lock()
	b.value = total
	b.mu.Unlock()
	b.log.Info("badge updated", "count", total, "text", BadgeText(total))
}

func (b *Badge) onStatus(status unreadsync.Status) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
	if !status.Healthy() {
		b.log.Warn("badge may be stale", "code", status.Code())
	}
}

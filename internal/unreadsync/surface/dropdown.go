package surface

import (
	"sync"

	"partshub/internal/domain/entity"
	"partshub/pkg/logger"
)

const DefaultDropdownLimit = 5

// DropdownPanel lists the most relevant conversations with their unread
// markers. Opening it asks for a refresh.
type DropdownPanel struct {
	log   *logger.Logger
	limit int

	mount
	src   Source
	items []entity.ConversationSummary
	open  bool
	omu   sync.Mutex
}

func NewDropdownPanel(limit int, log *logger.Logger) *DropdownPanel {
	if limit <= 0 {
		limit = DefaultDropdownLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DropdownPanel{limit: limit, log: log.With("surface", "dropdown")}
}

func (d *DropdownPanel) Mount(src Source) {
	if d.mounted() {
		return
	}
	d.omu.Lock()
	d.src = src
	d.omu.Unlock()
	d.set(src.SubscribeConversations(d.onConversations))
}

func (d *DropdownPanel) Unmount() {
	d.release()
}

// Open shows the panel and requests fresh data.
func (d *DropdownPanel) Open() {
	d.omu.Lock()
	d.open = true
	src := d.src
	d.omu.Unlock()
	if src != nil {
		src.RequestRefresh()
	}
}

func (d *DropdownPanel) Close() {
	d.omu.Lock()
	d.open = false
	d.omu.Unlock()
}

func (d *DropdownPanel) IsOpen() bool {
	d.omu.Lock()
	defer d.omu.Unlock()
	return d.open
}

// Items returns the rendered rows, unread first.
func (d *DropdownPanel) Items() []entity.ConversationSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]entity.ConversationSummary, len(d.items))
	copy(out, d.items)
	return out
}

func (d *DropdownPanel) onConversations(list []entity.ConversationSummary) {
	if len(list) > d.limit {
		list = list[:d.limit]
	}
	d.mu.Lock()
	d.items = list
	d.mu.Unlock()

	unread := 0
	for _, c := range list {
		if c.UnreadCount > 0 {
			unread++
		}
	}
	d.log.Info("dropdown updated", "rows", len(list), "unreadRows", unread)
}

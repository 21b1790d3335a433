package unreadsync

// Counter is the sequenced unread total. It is owned by the event loop and
// only mutated through a Reconciler.
type Counter struct {
	total    int
	sequence uint64
	source   Source

	tickets uint64
	// lastAuthoritative is the ticket of the latest-issued PULL or PUSH that
	// has been committed.
	lastAuthoritative uint64
}

func NewCounter() *Counter {
	return &Counter{}
}

// Issue captures the sequence observed by an operation that is starting, and
// hands out its ticket.
func (c *Counter) Issue() (sequence, ticket uint64) {
	c.tickets++
	return c.sequence, c.tickets
}

// lastTicket is the most recently issued ticket, without issuing one.
func (c *Counter) lastTicket() uint64 { return c.tickets }

func (c *Counter) State() State {
	return State{Total: c.total, Sequence: c.sequence, LastUpdateSource: c.source}
}

func (c *Counter) Total() int { return c.total }

// supersededBy reports whether an authoritative proposal issued after ticket
// has already been committed.
func (c *Counter) supersededBy(ticket uint64) bool {
	return c.lastAuthoritative > ticket
}

func (c *Counter) commit(source Source, total int, ticket uint64) {
	if total < 0 {
		total = 0
	}
	c.total = total
	c.sequence++
	c.source = source
	if source.authoritative() && ticket > c.lastAuthoritative {
		c.lastAuthoritative = ticket
	}
}

package mempool

import "go.uber.org/atomic"

// EventType distinguishes the two events the pool ever emits.
type EventType byte

const (
	// EventAdded marks successful admission of a new transaction.
	EventAdded EventType = 0x01
	// EventRemoved marks removal of a transaction, for any Reason.
	EventRemoved EventType = 0x02
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "transaction:added"
	case EventRemoved:
		return "transaction:removed"
	default:
		return "unknown"
	}
}

// RemovalReason explains why a transaction:removed event fired.
type RemovalReason string

const (
	ReasonPoolFull RemovalReason = "pool_full"
	ReasonExpired  RemovalReason = "expired"
	ReasonExplicit RemovalReason = "explicit"
	ReasonReplaced RemovalReason = "replaced"
)

// Event is a single pool notification.
type Event struct {
	Type   EventType
	ID     ID
	Reason RemovalReason // zero value for EventAdded
}

// eventBus is a synchronous broadcast to subscribed channels: a dedicated
// goroutine owns the subscriber set and forwards every event to every
// subscriber, so Subscribe/Unsubscribe never race with delivery.
//
// Handlers must not call back into the pool from within their receive
// loop; this bus does not detect or guard against that.
type eventBus struct {
	enabled bool
	on      atomic.Bool
	events  chan Event
	subCh   chan chan<- Event
	unsubCh chan chan<- Event
	stopCh  chan struct{}
}

func newEventBus(enabled bool) *eventBus {
	return &eventBus{
		enabled: enabled,
		events:  make(chan Event),
		subCh:   make(chan chan<- Event),
		unsubCh: make(chan chan<- Event),
		stopCh:  make(chan struct{}),
	}
}

// run starts the dispatcher goroutine. It is a no-op if the bus is disabled.
func (b *eventBus) run() {
	if !b.enabled {
		return
	}
	if b.on.CompareAndSwap(false, true) {
		go b.dispatch()
	}
}

// close stops the dispatcher goroutine. It is a no-op if the bus is disabled
// or already stopped.
func (b *eventBus) close() {
	if !b.enabled {
		return
	}
	if b.on.CompareAndSwap(true, false) {
		close(b.stopCh)
	}
}

func (b *eventBus) dispatch() {
	subs := make(map[chan<- Event]bool)
	for {
		select {
		case <-b.stopCh:
			return
		case ch := <-b.subCh:
			subs[ch] = true
		case ch := <-b.unsubCh:
			delete(subs, ch)
		case ev := <-b.events:
			for ch := range subs {
				ch <- ev
			}
		}
	}
}

// Subscribe registers ch to receive future events. A no-op if the bus is
// disabled or not running.
func (b *eventBus) Subscribe(ch chan<- Event) {
	if b.enabled && b.on.Load() {
		b.subCh <- ch
	}
}

// Unsubscribe removes ch from the subscriber set. A no-op if the bus is
// disabled or not running.
func (b *eventBus) Unsubscribe(ch chan<- Event) {
	if b.enabled && b.on.Load() {
		b.unsubCh <- ch
	}
}

// emit sends ev to every subscriber. A no-op if the bus is disabled or not
// running, so callers never block on an unused mempool.
func (b *eventBus) emit(ev Event) {
	if b.enabled && b.on.Load() {
		b.events <- ev
	}
}

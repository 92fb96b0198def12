package events

import (
	"sync"
)

// Subscriber is a function that receives events.
type Subscriber func(Event)

type subscription struct {
	types   []EventType
	handler Subscriber
}

// Bus fans events out to subscribers and keeps a bounded history of the most
// recent ones. Publishing never blocks the caller; a full buffer drops the
// event rather than stalling a turn.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
	hist   []Event
	oldest int
	closed bool

	in   chan Event
	done chan struct{}
}

// NewBus creates a bus whose channel buffer and history both hold size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	b := &Bus{
		subs: make(map[int]subscription),
		hist: make([]Event, 0, size),
		in:   make(chan Event, size),
		done: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case e := <-b.in:
			b.mu.Lock()
			b.record(e)
			handlers := b.matching(e)
			b.mu.Unlock()
			for _, h := range handlers {
				go h(e)
			}
		case <-b.done:
			return
		}
	}
}

// record appends e to the history ring, evicting the oldest entry once full.
// Caller holds b.mu.
func (b *Bus) record(e Event) {
	if len(b.hist) < cap(b.hist) {
		b.hist = append(b.hist, e)
		return
	}
	b.hist[b.oldest] = e
	b.oldest = (b.oldest + 1) % len(b.hist)
}

// matching collects the handlers subscribed to e's type. Caller holds b.mu.
func (b *Bus) matching(e Event) []Subscriber {
	var out []Subscriber
	for _, sub := range b.subs {
		if len(sub.types) == 0 {
			out = append(out, sub.handler)
			continue
		}
		for _, t := range sub.types {
			if t == e.Type {
				out = append(out, sub.handler)
				break
			}
		}
	}
	return out
}

// Publish sends an event to the bus, dropping it if the buffer is full.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	select {
	case b.in <- e:
	default:
	}
}

// Subscribe registers a handler for the given event types, or all events when
// none are given. The returned function removes the subscription.
func (b *Bus) Subscribe(handler Subscriber, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{types: types, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// SubscribeChan returns a channel that receives matching events. Events are
// dropped when the channel is full.
func (b *Bus) SubscribeChan(bufSize int, types ...EventType) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	unsubscribe := b.Subscribe(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}, types...)

	return ch, func() {
		unsubscribe()
		close(ch)
	}
}

// History returns up to limit of the most recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := len(b.hist)
	n := total
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}

	out := make([]Event, n)
	start := b.oldest + (total - n)
	for i := 0; i < n; i++ {
		out[i] = b.hist[(start+i)%total]
	}
	return out
}

// Close shuts down the bus. Subsequent publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

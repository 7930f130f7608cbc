package memhost

import (
	"context"
	"sync"

	"companies.ai/internal/sim/host"
)

type busItem struct {
	ev     host.Event
	commit func()
}

// Bus queues events and deferred host commits. Nothing is delivered inside
// the call that raised it; Flush or Run drains the queue in order.
type Bus struct {
	mu    sync.Mutex
	subs  []host.Subscriber
	queue []busItem
	wake  chan struct{}
}

func newBus() *Bus {
	return &Bus{wake: make(chan struct{}, 1)}
}

func (b *Bus) Subscribe(s host.Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
}

func (b *Bus) publish(ev host.Event) {
	b.push(busItem{ev: ev})
}

func (b *Bus) later(fn func()) {
	b.push(busItem{commit: fn})
}

func (b *Bus) push(it busItem) {
	b.mu.Lock()
	b.queue = append(b.queue, it)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) pop() (busItem, []host.Subscriber, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return busItem{}, nil, false
	}
	it := b.queue[0]
	b.queue[0] = busItem{}
	b.queue = b.queue[1:]
	subs := append([]host.Subscriber(nil), b.subs...)
	return it, subs, true
}

// Pending reports the number of queued items.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Flush delivers until the queue is empty, including items raised by
// handlers along the way. Returns the number of items processed.
func (b *Bus) Flush() int {
	n := 0
	for {
		it, subs, ok := b.pop()
		if !ok {
			return n
		}
		n++
		if it.commit != nil {
			it.commit()
			continue
		}
		for _, s := range subs {
			s.HandleEvent(it.ev)
		}
	}
}

// Run drains the queue whenever something is pushed, until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			b.Flush()
		}
	}
}

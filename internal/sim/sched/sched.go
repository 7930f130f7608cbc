package sched

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Scheduler interface {
	After(delay time.Duration, name string, fn func() error)
}

// Timer runs each item on its own timer goroutine. Errors and panics are
// logged; nothing reaches the caller.
type Timer struct {
	log zerolog.Logger

	mu      sync.Mutex
	pending int
	wg      sync.WaitGroup
}

func NewTimer(log zerolog.Logger) *Timer {
	return &Timer{log: log}
}

func (t *Timer) After(delay time.Duration, name string, fn func() error) {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
	t.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			t.pending--
			t.mu.Unlock()
		}()
		run(t.log, name, fn)
	})
}

// Pending reports items scheduled but not finished.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Wait blocks until every scheduled item has run.
func (t *Timer) Wait() { t.wg.Wait() }

func run(log zerolog.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", name).Str("panic", fmt.Sprint(r)).Msg("deferred task panicked")
		}
	}()
	if err := fn(); err != nil {
		log.Error().Err(err).Str("task", name).Msg("deferred task failed")
		return
	}
	log.Debug().Str("task", name).Msg("deferred task done")
}

type item struct {
	seq   int
	delay time.Duration
	name  string
	fn    func() error
}

// Manual queues items until RunAll/RunNext is called. Items run in delay
// order, then scheduling order. Used by tests.
type Manual struct {
	log zerolog.Logger

	mu    sync.Mutex
	seq   int
	queue []item
}

func NewManual(log zerolog.Logger) *Manual {
	return &Manual{log: log}
}

func (m *Manual) After(delay time.Duration, name string, fn func() error) {
	m.mu.Lock()
	m.seq++
	m.queue = append(m.queue, item{seq: m.seq, delay: delay, name: name, fn: fn})
	m.mu.Unlock()
}

// Pending lists queued item names.
func (m *Manual) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.queue))
	for _, it := range m.sortedLocked() {
		out = append(out, it.name)
	}
	return out
}

func (m *Manual) sortedLocked() []item {
	sort.SliceStable(m.queue, func(i, j int) bool {
		if m.queue[i].delay != m.queue[j].delay {
			return m.queue[i].delay < m.queue[j].delay
		}
		return m.queue[i].seq < m.queue[j].seq
	})
	return m.queue
}

// RunNext runs the next due item. Returns false when the queue is empty.
func (m *Manual) RunNext() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	q := m.sortedLocked()
	it := q[0]
	m.queue = q[1:]
	m.mu.Unlock()
	run(m.log, it.name, it.fn)
	return true
}

// RunAll runs items until none remain, including items scheduled by items.
// Returns the number run.
func (m *Manual) RunAll() int {
	n := 0
	for m.RunNext() {
		n++
	}
	return n
}

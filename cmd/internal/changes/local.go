package changes

import (
	"context"
	"sync"

	"axionx/cmd/internal/metrics"
)

// subscriber owns an unbounded queue drained into ch by its own goroutine.
// A conversation or message change identical to one still queued merges into
// it; session changes are always kept.
type subscriber struct {
	ch     chan Change
	tables map[string]struct{}

	mu      sync.Mutex
	queue   []Change
	queued  map[Change]struct{}
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func newSubscriber(tables []string) *subscriber {
	s := &subscriber{
		ch:     make(chan Change),
		queued: make(map[Change]struct{}),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if len(tables) > 0 {
		s.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			s.tables[t] = struct{}{}
		}
	}
	return s
}

func (s *subscriber) wants(table string) bool {
	if len(s.tables) == 0 {
		return true
	}
	_, ok := s.tables[table]
	return ok
}

func coalesces(c Change) bool {
	return c.Table == TableConversations || c.Table == TableMessages
}

// enqueue reports false when c merged into a change already waiting.
func (s *subscriber) enqueue(c Change) bool {
	s.mu.Lock()
	if coalesces(c) {
		if _, ok := s.queued[c]; ok {
			s.mu.Unlock()
			return false
		}
		s.queued[c] = struct{}{}
	}
	s.queue = append(s.queue, c)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *subscriber) next() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Change{}, false
	}
	c := s.queue[0]
	s.queue[0] = Change{}
	s.queue = s.queue[1:]
	if coalesces(c) {
		delete(s.queued, c)
	}
	return c, true
}

func (s *subscriber) forward() {
	defer close(s.ch)
	for {
		c, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.ch <- c:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) stop() {
	s.stopped.Do(func() { close(s.done) })
}

// LocalBus is the in-process fan-out. Publish never blocks and never loses a
// change: each subscriber queues without bound, merging repeated list changes.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[*subscriber]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, c Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		if !s.wants(c.Table) {
			continue
		}
		if s.enqueue(c) {
			metrics.ChangeEventsTotal.WithLabelValues(c.Table, "delivered").Inc()
		} else {
			metrics.ChangeEventsTotal.WithLabelValues(c.Table, "coalesced").Inc()
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(tables ...string) (<-chan Change, func()) {
	s := newSubscriber(tables)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.forward()
	return s.ch, func() { b.remove(s) }
}

func (b *LocalBus) remove(s *subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.stop()
}

// Close ends every subscription.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		s.stop()
	}
	return nil
}

// Subscribers reports the current subscription count.
func (b *LocalBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

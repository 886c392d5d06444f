// Package hub fans full note snapshots out to store subscribers.
//
// Every subscriber owns a mailbox holding at most one undelivered snapshot and a
// goroutine that drains it. Publishers never block on slow subscribers: a newer
// snapshot replaces an undelivered older one, which is safe because snapshots are
// full replacements of the collection.
package hub

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/jot/pkg/core"
)

// Hub is safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	last   []core.Note
	primed bool
	closed bool
	logger *slog.Logger
}

// New creates an empty hub. A nil logger discards output.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

// Publish hands notes to every subscriber. A snapshot equal to the previous one
// is dropped.
func (h *Hub) Publish(notes []core.Note) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if h.primed && slices.Equal(h.last, notes) {
		return
	}
	h.last = slices.Clone(notes)
	h.primed = true

	for _, s := range h.subs {
		s.offer(h.last)
	}
	h.logger.Debug("snapshot published", "notes", len(notes), "subscribers", len(h.subs))
}

// Last returns a copy of the most recent snapshot and whether one was published.
func (h *Hub) Last() ([]core.Note, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.last), h.primed
}

// Subscribe registers fn. If a snapshot was already published it is delivered
// right away. Delivery stops when the returned function is called, when ctx is
// done, or when the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, fn func([]core.Note)) core.Unsubscribe {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.stop()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = s
	if h.primed {
		s.offer(h.last)
	}
	h.mu.Unlock()

	go s.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			s.stop()
		})
	}
	stopWatch := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stopWatch()
		unsubscribe()
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every subscriber. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

type subscriber struct {
	fn       func([]core.Note)
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending []core.Note
	has     bool
}

func (s *subscriber) offer(notes []core.Note) {
	s.mu.Lock()
	s.pending = notes
	s.has = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		notes, ok := s.pending, s.has
		s.pending, s.has = nil, false
		s.mu.Unlock()

		if !ok {
			continue
		}
		select {
		case <-s.done:
			return
		default:
		}
		s.fn(slices.Clone(notes))
	}
}

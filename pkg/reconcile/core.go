package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/jot/pkg/core"
)

// Common errors.
var (
	ErrUnknownNote = errors.New("note is not in the current list")
	ErrNotStarted  = errors.New("reconcile core not started")
	ErrClosed      = errors.New("reconcile core closed")
)

// Core is the reconciliation core. Create it with New, call Start once, and
// Close it when done.
type Core struct {
	store core.Store
	cfg   *config
	log   *slog.Logger

	queue chan func()
	stop  chan struct{}
	done  chan struct{}

	started     atomic.Bool
	startOnce   sync.Once
	startErr    error
	closeOnce   sync.Once
	cancel      context.CancelFunc
	unsubscribe core.Unsubscribe
	writes      sync.WaitGroup

	// Owned by the event loop.
	notes      map[string]core.Note
	sorted     []core.Note
	currentID  string
	observedID string
	awaitID    string
	awaitSince time.Time
	buffer     string
	debounce   debouncer
	inflight   map[string]*writeJob

	// Published for readers outside the loop.
	mu          sync.Mutex
	view        View
	stats       stats
	watchers    map[uint64]chan View
	nextWatcher uint64
}

type stats struct {
	Ingests      int
	Writes       int
	FailedWrites int
	LastError    string
	AwaitingID   string
}

// writeJob is one merge write. Writes to the same note are chained so they reach
// the store in the order they fired.
type writeJob struct {
	write  pendingWrite
	prev   chan struct{}
	done   chan struct{}
	result chan error
}

// New creates a Core reading from and writing to store.
func New(store core.Store, opts ...Option) *Core {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Core{
		store:    store,
		cfg:      cfg,
		log:      cfg.logger,
		queue:    make(chan func(), cfg.queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		notes:    make(map[string]core.Note),
		inflight: make(map[string]*writeJob),
		watchers: make(map[uint64]chan View),
	}
}

// Start runs the event loop and subscribes to the store. The subscription lives
// until ctx is done or Close is called; when it ends, ingestion simply stops.
func (c *Core) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		c.startErr = c.start(ctx)
	})
	return c.startErr
}

func (c *Core) start(ctx context.Context) error {
	select {
	case <-c.stop:
		return ErrClosed
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started.Store(true)
	go c.run()

	unsubscribe, err := c.store.Subscribe(runCtx, func(notes []core.Note) {
		c.post(func() { c.ingest(notes) })
	})
	if err != nil {
		c.log.Error("subscribe failed", "error", err)
		return core.NewStoreError(core.OpSubscribe, "", err)
	}
	c.unsubscribe = unsubscribe
	c.log.Debug("reconcile core started", "quiescence", c.cfg.quiescence)
	return nil
}

// Close flushes a pending write, unsubscribes and stops the event loop. It waits
// for writes already handed to the store, bounded by ctx.
func (c *Core) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		started := c.started.Load()
		if started {
			err = c.Flush(ctx)
		}
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		if c.cancel != nil {
			c.cancel()
		}
		close(c.stop)
		if started {
			<-c.done
		}
		c.debounce.stopTimer()

		waited := make(chan struct{})
		go func() {
			c.writes.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			if err == nil {
				err = ctx.Err()
			}
		}

		c.mu.Lock()
		for id, ch := range c.watchers {
			delete(c.watchers, id)
			close(ch)
		}
		c.mu.Unlock()
	})
	return err
}

func (c *Core) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case fn := <-c.queue:
			fn()
		}
	}
}

// post enqueues fn for the event loop. It reports false once the core is closed.
func (c *Core) post(fn func()) bool {
	select {
	case <-c.stop:
		return false
	default:
	}
	select {
	case c.queue <- fn:
		return true
	case <-c.stop:
		return false
	}
}

// do runs fn on the event loop and waits for its result.
func (c *Core) do(ctx context.Context, fn func() error) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	errc := make(chan error, 1)
	if !c.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ingest replaces the note list with a snapshot.
func (c *Core) ingest(notes []core.Note) {
	list := make(map[string]core.Note, len(notes))
	for _, n := range notes {
		list[n.ID] = n
	}
	flat := make([]core.Note, 0, len(list))
	for _, n := range list {
		flat = append(flat, n)
	}

	c.notes = list
	c.sorted = core.SortByRecency(flat)

	c.resolveSelection()
	c.syncBuffer()

	c.mu.Lock()
	c.stats.Ingests++
	c.mu.Unlock()
	c.log.Debug("snapshot ingested", "notes", len(list), "current", c.currentID)
	c.publish()
}

func (c *Core) now() time.Time {
	return c.cfg.now()
}

package reconcile

import (
	"log/slog"
	"time"
)

const (
	// DefaultQuiescence is how long the buffer must stay untouched before it is written.
	DefaultQuiescence = 500 * time.Millisecond

	// DefaultBody is the body of notes created by CreateNote.
	DefaultBody = "# Title of notes"

	defaultQueueSize    = 100
	defaultWriteTimeout = 10 * time.Second
	defaultAwaitTimeout = 10 * time.Second
)

type config struct {
	logger       *slog.Logger
	quiescence   time.Duration
	defaultBody  string
	now          func() time.Time
	queueSize    int
	writeTimeout time.Duration
	awaitTimeout time.Duration
}

// Option configures a Core.
type Option func(*config)

func defaultConfig() *config {
	return &config{
		logger:       slog.New(slog.DiscardHandler),
		quiescence:   DefaultQuiescence,
		defaultBody:  DefaultBody,
		now:          time.Now,
		queueSize:    defaultQueueSize,
		writeTimeout: defaultWriteTimeout,
		awaitTimeout: defaultAwaitTimeout,
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQuiescence sets the debounce interval. Non-positive values keep the default.
func WithQuiescence(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.quiescence = d
		}
	}
}

// WithDefaultBody sets the placeholder body of newly created notes.
func WithDefaultBody(body string) Option {
	return func(c *config) {
		c.defaultBody = body
	}
}

// WithClock replaces time.Now for createdAt and updatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithQueueSize sets the capacity of the event queue.
// Zero means default (100).
func WithQueueSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithWriteTimeout bounds every merge write issued by the debouncer.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithAwaitTimeout bounds how long a created note is awaited for selection.
// Snapshots ingested after that without the note drop the wait.
func WithAwaitTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.awaitTimeout = d
		}
	}
}

package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/jot/pkg/core"
)

// options holds the configuration shared by OpenStore and New.
type options struct {
	store   core.Store
	logger  *slog.Logger
	adapter string
	config  map[string]any
}

// Option defines a functional option for configuring jot.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		logger: slog.New(slog.DiscardHandler),
		config: make(map[string]any),
	}
}

func resolveOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) boolValue(key string, def bool) bool {
	if v, ok := o.config[key].(bool); ok {
		return v
	}
	return def
}

func (o *options) stringValue(key string) string {
	s, _ := o.config[key].(string)
	return s
}

func (o *options) durationValue(key string) time.Duration {
	d, _ := o.config[key].(time.Duration)
	return d
}

// WithLogger sets the logger handed to the store and the reconcile core.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStore injects a ready store (e.g. a mock). The URI and adapter options are
// then ignored, and the store is not closed by Notebook.Close.
func WithStore(store core.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithAdapter forces an adapter ("fs", "sqlite", "memory", "remote") instead of
// deriving it from the URI.
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithAutoInit runs git init on a versioned fs store that is not a repository yet.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.config["auto_init"] = auto
	}
}

// WithVersioning enables or disables a git commit per write on the fs adapter.
// When unset, versioning is on exactly when the directory already holds a .git.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.config["versioning"] = enabled
	}
}

// WithAuthor sets the git author of versioned writes.
func WithAuthor(name, email string) Option {
	return func(o *options) {
		o.config["author_name"] = name
		o.config["author_email"] = email
	}
}

// WithMustExist fails when the store directory does not exist.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.config["must_exist"] = must
	}
}

// WithReadOnly rejects every write with core.ErrReadOnly.
func WithReadOnly(readOnly bool) Option {
	return func(o *options) {
		o.config["read_only"] = readOnly
	}
}

// WithSystemDir sets the name of the fs adapter's bookkeeping directory.
// Default: ".jot".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.config["system_dir"] = name
	}
}

// WithPattern sets the doublestar pattern selecting note files, e.g. "**/*.md".
func WithPattern(pattern string) Option {
	return func(o *options) {
		o.config["pattern"] = pattern
	}
}

// WithWatch toggles the fs watcher. Enabled by default.
func WithWatch(watch bool) Option {
	return func(o *options) {
		o.config["watch"] = watch
	}
}

// WithWatcherErrorHandler receives errors raised by background watching.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.config["watcher_error_handler"] = fn
	}
}

// WithForceTemp redirects local stores into a temporary directory.
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.config["temp_dir"] = force
	}
}

// WithDevSafety controls the automatic sandbox used under `go run` and `go test`.
// Enabled by default.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.config["dev_safety"] = enabled
	}
}

// WithPollInterval sets how often the sqlite adapter checks for other writers.
// A negative value disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.config["poll_interval"] = d
	}
}

// WithToken sets the bearer token sent by the remote adapter.
func WithToken(token string) Option {
	return func(o *options) {
		o.config["token"] = token
	}
}

// WithDialTimeout bounds each connection attempt of the remote adapter.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config["dial_timeout"] = d
	}
}

// WithQuiescence sets how long the edit buffer must stay untouched before it is
// written.
func WithQuiescence(d time.Duration) Option {
	return func(o *options) {
		o.config["quiescence"] = d
	}
}

// WithDefaultBody sets the body given to notes created through the core.
func WithDefaultBody(body string) Option {
	return func(o *options) {
		o.config["default_body"] = body
	}
}

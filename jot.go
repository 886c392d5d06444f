package jot

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/jot/internal/platform"
	"github.com/aretw0/jot/pkg/core"
)

// --- Types ---

// Note is a public alias for the note record.
type Note = core.Note

// Store is a public alias for the store contract.
type Store = core.Store

// Notebook is a started reconcile core bound to its store.
type Notebook = platform.Notebook

// --- Configuration ---

// Option defines a functional option for configuring jot.
type Option = platform.Option

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = platform.AdapterFS
	AdapterSQLite = platform.AdapterSQLite
	AdapterMemory = platform.AdapterMemory
	AdapterRemote = platform.AdapterRemote
)

// WithLogger sets the logger for the store and the core.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithStore injects a ready store.
func WithStore(store core.Store) Option {
	return platform.WithStore(store)
}

// WithAdapter forces the storage adapter by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithAutoInit runs git init on a versioned directory that is not a repository yet.
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithVersioning enables or disables a git commit per write.
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithAuthor sets the git author of versioned writes.
func WithAuthor(name, email string) Option {
	return platform.WithAuthor(name, email)
}

// WithMustExist ensures the notes directory already exists.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithReadOnly rejects every write.
func WithReadOnly(readOnly bool) Option {
	return platform.WithReadOnly(readOnly)
}

// WithSystemDir sets the hidden bookkeeping directory name (e.g. ".jot").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithPattern sets the doublestar pattern selecting note files.
func WithPattern(pattern string) Option {
	return platform.WithPattern(pattern)
}

// WithWatch toggles the filesystem watcher.
func WithWatch(watch bool) Option {
	return platform.WithWatch(watch)
}

// WithWatcherErrorHandler receives background watcher errors.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// WithForceTemp forces the use of a temporary directory.
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithDevSafety controls the sandbox used under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithPollInterval sets how often the sqlite adapter looks for other writers.
func WithPollInterval(d time.Duration) Option {
	return platform.WithPollInterval(d)
}

// WithToken sets the bearer token of the remote adapter.
func WithToken(token string) Option {
	return platform.WithToken(token)
}

// WithDialTimeout bounds each connection attempt of the remote adapter.
func WithDialTimeout(d time.Duration) Option {
	return platform.WithDialTimeout(d)
}

// WithQuiescence sets the debounce interval of the edit buffer.
func WithQuiescence(d time.Duration) Option {
	return platform.WithQuiescence(d)
}

// WithDefaultBody sets the body of newly created notes.
func WithDefaultBody(body string) Option {
	return platform.WithDefaultBody(body)
}

// --- Factory ---

// OpenStore opens the store named by uri without starting a core.
func OpenStore(ctx context.Context, uri string, opts ...Option) (core.Store, error) {
	return platform.OpenStore(ctx, uri, opts...)
}

// New opens the store named by uri and starts a reconcile core on it.
func New(ctx context.Context, uri string, opts ...Option) (*Notebook, error) {
	return platform.New(ctx, uri, opts...)
}

// --- Safety & Utils ---

// DetectAdapter reports the adapter a URI maps to.
func DetectAdapter(uri string) (adapter, target string) {
	return platform.DetectAdapter(uri)
}

// FindRoot looks upwards from startDir for a notes root.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// DefaultStore returns the discovered root, or ~/.jot/notes.
func DefaultStore() (string, error) {
	return platform.DefaultStore()
}

// IsDevRun reports whether the process runs under `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// ResolvePath applies the dev sandbox rules to a local store path.
func ResolvePath(userPath string, forceTemp bool) string {
	return platform.ResolvePath(userPath, forceTemp)
}

// Package sqlite stores notes in a SQLite database.
//
// Writes publish a fresh snapshot right away. Commits made by other processes
// are noticed by polling PRAGMA data_version on a dedicated connection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"
	_ "modernc.org/sqlite"

	"github.com/aretw0/jot/pkg/adapters/hub"
	"github.com/aretw0/jot/pkg/adapters/internal/ids"
	"github.com/aretw0/jot/pkg/core"
)

// DefaultPollInterval is how often other processes' commits are checked for.
const DefaultPollInterval = time.Second

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_notes_recency ON notes(COALESCE(updated_at, created_at) DESC);
`

// Config configures a Store.
type Config struct {
	Path string
	// PollInterval defaults to DefaultPollInterval. A negative value disables polling.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Store implements core.Store on a SQLite file.
type Store struct {
	db  *sql.DB
	cfg Config
	hub *hub.Hub
	ids *ids.Generator
	log *slog.Logger

	reloadMu sync.Mutex // orders reads with their publications

	mu          sync.Mutex
	closed      bool
	reloads     int
	lastVersion int64

	cancel    context.CancelFunc
	pollDone  chan struct{}
	closeOnce sync.Once
}

// Open opens or creates the database at cfg.Path and publishes its notes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:  db,
		cfg: cfg,
		hub: hub.New(cfg.Logger),
		ids: ids.NewGenerator(),
		log: cfg.Logger,
	}
	if err := s.reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.PollInterval > 0 {
		if err := s.startPolling(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Subscribe(ctx context.Context, fn func([]core.Note)) (core.Unsubscribe, error) {
	if s.isClosed() {
		return nil, core.NewStoreError(core.OpSubscribe, "", core.ErrUnavailable)
	}
	if err := s.reload(ctx); err != nil {
		return nil, core.NewStoreError(core.OpSubscribe, "", err)
	}
	return s.hub.Subscribe(ctx, fn), nil
}

func (s *Store) Create(ctx context.Context, f core.CreateFields) (string, error) {
	if s.isClosed() {
		return "", core.NewStoreError(core.OpCreate, "", core.ErrUnavailable)
	}
	id := s.ids.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, body, created_at) VALUES (?, ?, ?)`,
		id, f.Body, f.CreatedAt)
	if err != nil {
		return "", core.NewStoreError(core.OpCreate, id, fmt.Errorf("insert note: %w", err))
	}
	s.log.Debug("note created", "id", id)
	s.publishAfterWrite(ctx, core.OpCreate, id)
	return id, nil
}

func (s *Store) MergeUpdate(ctx context.Context, id string, f core.UpdateFields) error {
	if s.isClosed() {
		return core.NewStoreError(core.OpUpdate, id, core.ErrUnavailable)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET body = ?, updated_at = ? WHERE id = ?`,
		f.Body, f.UpdatedAt, id)
	if err != nil {
		return core.NewStoreError(core.OpUpdate, id, fmt.Errorf("update note: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewStoreError(core.OpUpdate, id, core.ErrNotFound)
	}
	s.publishAfterWrite(ctx, core.OpUpdate, id)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s.isClosed() {
		return core.NewStoreError(core.OpDelete, id, core.ErrUnavailable)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return core.NewStoreError(core.OpDelete, id, fmt.Errorf("delete note: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewStoreError(core.OpDelete, id, core.ErrNotFound)
	}
	s.log.Debug("note deleted", "id", id)
	s.publishAfterWrite(ctx, core.OpDelete, id)
	return nil
}

// List returns every note ordered by id.
func (s *Store) List(ctx context.Context) ([]core.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body, created_at, updated_at FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []core.Note
	for rows.Next() {
		var (
			n       core.Note
			updated sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.Body, &n.CreatedAt, &updated); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.UpdatedAt = updated.Int64
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Close stops polling and every subscriber, then closes the database.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
			<-s.pollDone
		}
		s.hub.Close()
		err = s.db.Close()
	})
	return err
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) publishAfterWrite(ctx context.Context, op, id string) {
	if err := s.reload(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn("reload after write failed", "op", op, "id", id, "error", err)
	}
}

// reload reads the whole table and publishes it.
func (s *Store) reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	notes, err := s.List(ctx)
	if err != nil {
		return err
	}
	s.hub.Publish(notes)

	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()
	return nil
}

// startPolling watches PRAGMA data_version on one pinned connection. The value
// changes whenever another connection commits, including our own pool's writes,
// which the hub then drops as duplicates.
func (s *Store) startPolling(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("pin poll connection: %w", err)
	}
	version, err := dataVersion(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}
	s.lastVersion = version

	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pollDone = make(chan struct{})

	lifecycle.Go(pollCtx, func(ctx context.Context) error {
		defer close(s.pollDone)
		defer conn.Close()

		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.poll(ctx, conn)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.log.Error("sqlite poller stopped", "error", err)
	}))
	return nil
}

func (s *Store) poll(ctx context.Context, conn *sql.Conn) {
	version, err := dataVersion(ctx, conn)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("data_version poll failed", "error", err)
		}
		return
	}

	s.mu.Lock()
	changed := version != s.lastVersion
	s.lastVersion = version
	s.mu.Unlock()

	if !changed {
		return
	}
	if err := s.reload(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("reload after external change failed", "error", err)
	}
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read data_version: %w", err)
	}
	return v, nil
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Path         string `json:"path"`
	PollInterval string `json:"poll_interval"`
	Subscribers  int    `json:"subscribers"`
	Reloads      int    `json:"reloads"`
	DataVersion  int64  `json:"data_version"`
	Closed       bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreState{
		Path:         s.cfg.Path,
		PollInterval: s.cfg.PollInterval.String(),
		Subscribers:  s.hub.Len(),
		Reloads:      s.reloads,
		DataVersion:  s.lastVersion,
		Closed:       s.closed,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "sqlite-store"
}

var _ core.Store = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

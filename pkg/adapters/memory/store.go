// Package memory provides an in-process core.Store.
//
// It backs tests and demos, and the "mem:" URI scheme of the CLI. Writes are
// visible to subscribers immediately, the way a local cache of a real-time
// store echoes its own writes.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/jot/pkg/adapters/hub"
	"github.com/aretw0/jot/pkg/adapters/internal/ids"
	"github.com/aretw0/jot/pkg/core"
)

// FaultFunc decides whether an operation should fail. Returning nil lets it proceed.
type FaultFunc func(op, id string) error

// Store is a map guarded by a mutex, published through a hub on every change.
type Store struct {
	mu     sync.Mutex
	notes  map[string]core.Note
	order  []string
	fault  FaultFunc
	ids    *ids.Generator
	hub    *hub.Hub
	logger *slog.Logger
}

// New creates a store seeded with the given notes.
func New(logger *slog.Logger, seed ...core.Note) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		notes:  make(map[string]core.Note),
		ids:    ids.NewGenerator(),
		hub:    hub.New(logger),
		logger: logger,
	}
	for _, n := range seed {
		if _, ok := s.notes[n.ID]; !ok {
			s.order = append(s.order, n.ID)
		}
		s.notes[n.ID] = n
	}
	s.hub.Publish(s.snapshotLocked())
	return s
}

// SetFault installs fn as the failure policy. Passing nil clears it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *Store) Subscribe(ctx context.Context, fn func([]core.Note)) (core.Unsubscribe, error) {
	s.mu.Lock()
	fault := s.fault
	s.mu.Unlock()
	if fault != nil {
		if err := fault(core.OpSubscribe, ""); err != nil {
			return nil, core.NewStoreError(core.OpSubscribe, "", err)
		}
	}
	return s.hub.Subscribe(ctx, fn), nil
}

func (s *Store) Create(ctx context.Context, f core.CreateFields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(core.OpCreate, ""); err != nil {
		return "", err
	}

	id := s.ids.New()
	s.notes[id] = core.Note{ID: id, Body: f.Body, CreatedAt: f.CreatedAt}
	s.order = append(s.order, id)
	s.logger.Debug("note created", "id", id)
	s.hub.Publish(s.snapshotLocked())
	return id, nil
}

func (s *Store) MergeUpdate(ctx context.Context, id string, f core.UpdateFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(core.OpUpdate, id); err != nil {
		return err
	}
	n, ok := s.notes[id]
	if !ok {
		return core.NewStoreError(core.OpUpdate, id, core.ErrNotFound)
	}
	n.Body = f.Body
	n.UpdatedAt = f.UpdatedAt
	s.notes[id] = n
	s.hub.Publish(s.snapshotLocked())
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(core.OpDelete, id); err != nil {
		return err
	}
	if _, ok := s.notes[id]; !ok {
		return core.NewStoreError(core.OpDelete, id, core.ErrNotFound)
	}
	delete(s.notes, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.hub.Publish(s.snapshotLocked())
	return nil
}

// Get returns a copy of a single note.
func (s *Store) Get(id string) (core.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	return n, ok
}

// Notes returns the current list in insertion order.
func (s *Store) Notes() []core.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close stops every subscriber.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) check(op, id string) error {
	if s.fault == nil {
		return nil
	}
	return core.NewStoreError(op, id, s.fault(op, id))
}

func (s *Store) snapshotLocked() []core.Note {
	out := make([]core.Note, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.notes[id])
	}
	return out
}

// StoreState exposes internal state for observability.
type StoreState struct {
	Notes       int `json:"notes"`
	Subscribers int `json:"subscribers"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	n := len(s.notes)
	s.mu.Unlock()
	return StoreState{Notes: n, Subscribers: s.hub.Len()}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory-store"
}

var _ core.Store = (*Store)(nil)
var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

package sqlite_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/jot/pkg/adapters/sqlite"
	"github.com/aretw0/jot/pkg/core"
)

func openStore(t *testing.T, path string, poll time.Duration) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: path, PollInterval: poll})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type latest struct {
	mu    sync.Mutex
	notes []core.Note
}

func (l *latest) set(notes []core.Note) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = notes
}

func (l *latest) body(id string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.notes {
		if n.ID == id {
			return n.Body, true
		}
	}
	return "", false
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "notes.db"), -1)

	id, err := s.Create(ctx, core.CreateFields{Body: "# Title of notes", CreatedAt: 10})
	require.NoError(t, err)

	notes, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Note{{ID: id, Body: "# Title of notes", CreatedAt: 10}}, notes)

	require.NoError(t, s.MergeUpdate(ctx, id, core.UpdateFields{Body: "edited", UpdatedAt: 20}))
	notes, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Note{{ID: id, Body: "edited", CreatedAt: 10, UpdatedAt: 20}}, notes)

	require.NoError(t, s.Delete(ctx, id))
	notes, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)

	assert.ErrorIs(t, s.MergeUpdate(ctx, id, core.UpdateFields{Body: "x"}), core.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), core.ErrNotFound)
}

func TestSubscribeSeesWrites(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "notes.db"), -1)

	var l latest
	unsubscribe, err := s.Subscribe(ctx, l.set)
	require.NoError(t, err)
	defer unsubscribe()

	id, err := s.Create(ctx, core.CreateFields{Body: "hello", CreatedAt: 1})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		b, ok := l.body(id)
		return ok && b == "hello"
	}, time.Second, 5*time.Millisecond)
}

func TestPicksUpOtherConnectionWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.db")
	watcher := openStore(t, path, 20*time.Millisecond)
	writer := openStore(t, path, -1)

	var l latest
	unsubscribe, err := watcher.Subscribe(ctx, l.set)
	require.NoError(t, err)
	defer unsubscribe()

	id, err := writer.Create(ctx, core.CreateFields{Body: "from elsewhere", CreatedAt: 1})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		b, ok := l.body(id)
		return ok && b == "from elsewhere"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.db")

	first, err := sqlite.Open(ctx, sqlite.Config{Path: path, PollInterval: -1})
	require.NoError(t, err)
	id, err := first.Create(ctx, core.CreateFields{Body: "kept", CreatedAt: 5})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	_, err = first.Create(ctx, core.CreateFields{Body: "late"})
	assert.ErrorIs(t, err, core.ErrUnavailable)

	second := openStore(t, path, -1)
	notes, err := second.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Note{{ID: id, Body: "kept", CreatedAt: 5}}, notes)

	state, ok := second.State().(sqlite.StoreState)
	require.True(t, ok)
	assert.Equal(t, path, state.Path)
}

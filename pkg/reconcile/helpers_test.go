package reconcile_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/jot/pkg/adapters/memory"
	"github.com/aretw0/jot/pkg/core"
	"github.com/aretw0/jot/pkg/reconcile"
)

const (
	quiescence = 40 * time.Millisecond
	waitFor    = 2 * time.Second
	tick       = 5 * time.Millisecond
)

type update struct {
	id     string
	fields core.UpdateFields
	at     time.Time
}

// recordingStore is a memory store that remembers every merge write.
type recordingStore struct {
	*memory.Store

	mu      sync.Mutex
	updates []update
}

func newRecordingStore(seed ...core.Note) *recordingStore {
	return &recordingStore{Store: memory.New(nil, seed...)}
}

func (r *recordingStore) MergeUpdate(ctx context.Context, id string, f core.UpdateFields) error {
	r.mu.Lock()
	r.updates = append(r.updates, update{id: id, fields: f, at: time.Now()})
	r.mu.Unlock()
	return r.Store.MergeUpdate(ctx, id, f)
}

func (r *recordingStore) Updates() []update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]update(nil), r.updates...)
}

// manualStore hands snapshot delivery to the test.
type manualStore struct {
	mu     sync.Mutex
	fn     func([]core.Note)
	nextID int
}

func (m *manualStore) Subscribe(ctx context.Context, fn func([]core.Note)) (core.Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.fn = nil
	}, nil
}

func (m *manualStore) push(notes ...core.Note) {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		fn(notes)
	}
}

func (m *manualStore) Create(ctx context.Context, f core.CreateFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("n%d", m.nextID), nil
}

func (m *manualStore) MergeUpdate(ctx context.Context, id string, f core.UpdateFields) error {
	return nil
}

func (m *manualStore) Delete(ctx context.Context, id string) error {
	return nil
}

func startCore(t *testing.T, store core.Store, opts ...reconcile.Option) *reconcile.Core {
	t.Helper()
	opts = append([]reconcile.Option{reconcile.WithQuiescence(quiescence)}, opts...)
	c := reconcile.New(store, opts...)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func ingests(c *reconcile.Core) int {
	return c.State().(reconcile.CoreState).Ingests
}

func waitCurrent(t *testing.T, c *reconcile.Core, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		n, ok := c.CurrentNote()
		return ok && n.ID == id
	}, waitFor, tick, "current note never became %q", id)
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

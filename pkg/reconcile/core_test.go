package reconcile_test

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/jot/pkg/core"
	"github.com/aretw0/jot/pkg/reconcile"
)

func TestSingleEditIssuesOneMergeWrite(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "hello", CreatedAt: 50, UpdatedAt: 100})
	c := startCore(t, store, reconcile.WithClock(fixedClock(5000)))

	waitCurrent(t, c, "a")
	require.NoError(t, c.SelectNote(ctx, "a"))
	assert.Equal(t, "hello", c.View().Buffer)

	edited := time.Now()
	require.NoError(t, c.EditBuffer(ctx, "hello world"))
	assert.True(t, c.View().Pending)

	require.Eventually(t, func() bool { return len(store.Updates()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return len(store.Updates()) > 1 }, 4*quiescence, tick)

	u := store.Updates()[0]
	assert.Equal(t, "a", u.id)
	assert.Equal(t, core.UpdateFields{Body: "hello world", UpdatedAt: 5000}, u.fields)
	assert.GreaterOrEqual(t, u.at.Sub(edited), quiescence)

	stored, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(50), stored.CreatedAt, "merge write must leave createdAt alone")
	assert.Equal(t, "hello world", c.View().Buffer)
}

func TestBurstOfEditsIsCoalesced(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "", CreatedAt: 1})
	c := startCore(t, store)
	waitCurrent(t, c, "a")

	text := ""
	for _, r := range "typing" {
		text += string(r)
		require.NoError(t, c.EditBuffer(ctx, text))
		time.Sleep(quiescence / 4)
	}

	require.Eventually(t, func() bool { return len(store.Updates()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return len(store.Updates()) > 1 }, 4*quiescence, tick)
	assert.Equal(t, "typing", store.Updates()[0].fields.Body)
}

func TestSwitchingNotesKeepsPendingWriteTarget(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(
		core.Note{ID: "a", Body: "alpha", CreatedAt: 1},
		core.Note{ID: "b", Body: "bravo", CreatedAt: 2},
	)
	c := startCore(t, store)
	waitCurrent(t, c, "b")

	require.NoError(t, c.SelectNote(ctx, "a"))
	require.NoError(t, c.EditBuffer(ctx, "alpha edited"))
	require.NoError(t, c.SelectNote(ctx, "b"))
	assert.Equal(t, "bravo", c.View().Buffer)

	require.Eventually(t, func() bool { return len(store.Updates()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return len(store.Updates()) > 1 }, 4*quiescence, tick)

	u := store.Updates()[0]
	assert.Equal(t, "a", u.id)
	assert.Equal(t, "alpha edited", u.fields.Body)

	b, _ := store.Get("b")
	assert.Equal(t, "bravo", b.Body)
	assert.Equal(t, "bravo", c.View().Buffer, "the echo of a's write must not touch b's buffer")
}

func TestEditingAnotherNoteKeepsEarlierPendingWrite(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(
		core.Note{ID: "a", Body: "alpha", CreatedAt: 1},
		core.Note{ID: "b", Body: "bravo", CreatedAt: 2},
	)
	c := startCore(t, store)
	waitCurrent(t, c, "b")

	require.NoError(t, c.SelectNote(ctx, "a"))
	require.NoError(t, c.EditBuffer(ctx, "alpha edited"))
	require.NoError(t, c.SelectNote(ctx, "b"))
	require.NoError(t, c.EditBuffer(ctx, "bravo edited"))

	v := c.View()
	assert.True(t, v.Pending)
	assert.Equal(t, "b", v.PendingID, "only one timer stays armed")

	require.Eventually(t, func() bool { return len(store.Updates()) == 2 }, waitFor, tick)
	assert.Never(t, func() bool { return len(store.Updates()) > 2 }, 4*quiescence, tick)

	written := map[string]string{}
	for _, u := range store.Updates() {
		written[u.id] = u.fields.Body
	}
	assert.Equal(t, map[string]string{"a": "alpha edited", "b": "bravo edited"}, written)

	a, _ := store.Get("a")
	assert.Equal(t, "alpha edited", a.Body)

	require.Eventually(t, func() bool {
		for _, n := range c.View().Notes {
			if n.ID == "a" {
				return n.Body == "alpha edited"
			}
		}
		return false
	}, waitFor, tick)
	require.NoError(t, c.SelectNote(ctx, "a"))
	assert.Equal(t, "alpha edited", c.View().Buffer)
}

func TestPendingWriteIsVisible(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "hello", CreatedAt: 1})
	c := startCore(t, store, reconcile.WithClock(fixedClock(5000)))
	waitCurrent(t, c, "a")

	require.NoError(t, c.EditBuffer(ctx, "hello world"))
	deadline := time.UnixMilli(5000).Add(quiescence)

	v := c.View()
	assert.Equal(t, "a", v.PendingID)
	assert.True(t, deadline.Equal(v.PendingDeadline))

	state := c.State().(reconcile.CoreState)
	assert.Equal(t, "pending", state.Debounce)
	assert.Equal(t, "a", state.PendingID)
	assert.True(t, deadline.Equal(state.PendingDeadline))

	require.Eventually(t, func() bool { return !c.View().Pending }, waitFor, tick)
	assert.Empty(t, c.View().PendingID)
	assert.True(t, c.View().PendingDeadline.IsZero())
}

func TestReturningToNoteShowsUnsavedEdit(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(
		core.Note{ID: "a", Body: "alpha", CreatedAt: 1},
		core.Note{ID: "b", Body: "bravo", CreatedAt: 2},
	)
	c := startCore(t, store, reconcile.WithQuiescence(time.Hour))
	waitCurrent(t, c, "b")

	require.NoError(t, c.SelectNote(ctx, "a"))
	require.NoError(t, c.EditBuffer(ctx, "draft"))
	require.NoError(t, c.SelectNote(ctx, "b"))
	require.NoError(t, c.SelectNote(ctx, "a"))

	assert.Equal(t, "draft", c.View().Buffer)
	assert.Empty(t, store.Updates())
}

func TestRemoteChangeToSelectedNoteKeepsBuffer(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "hello", CreatedAt: 1})
	c := startCore(t, store, reconcile.WithQuiescence(time.Hour))
	waitCurrent(t, c, "a")

	require.NoError(t, c.EditBuffer(ctx, "typing..."))
	require.NoError(t, store.Store.MergeUpdate(ctx, "a", core.UpdateFields{Body: "remote", UpdatedAt: 9}))

	require.Eventually(t, func() bool {
		n, ok := c.CurrentNote()
		return ok && n.Body == "remote"
	}, waitFor, tick)
	assert.Equal(t, "typing...", c.View().Buffer)
}

func TestBufferCopiedOncePerSelection(t *testing.T) {
	ctx := context.Background()
	store := &manualStore{}
	c := startCore(t, store, reconcile.WithQuiescence(time.Hour))

	store.push(core.Note{ID: "a", Body: "v1", CreatedAt: 1})
	waitCurrent(t, c, "a")
	assert.Equal(t, "v1", c.View().Buffer)

	require.NoError(t, c.EditBuffer(ctx, "mine"))
	for i := 2; i < 5; i++ {
		before := ingests(c)
		store.push(core.Note{ID: "a", Body: "remote", CreatedAt: 1, UpdatedAt: int64(i)})
		require.Eventually(t, func() bool { return ingests(c) > before }, waitFor, tick)
		assert.Equal(t, "mine", c.View().Buffer)
	}
}

func TestDefaultSelectionFollowsRecency(t *testing.T) {
	store := newRecordingStore(
		core.Note{ID: "a", Body: "older", CreatedAt: 1, UpdatedAt: 100},
		core.Note{ID: "b", Body: "newer", CreatedAt: 2, UpdatedAt: 300},
		core.Note{ID: "c", Body: "never edited", CreatedAt: 200},
	)
	c := startCore(t, store)

	waitCurrent(t, c, "b")
	v := c.View()
	assert.Equal(t, "newer", v.Buffer)
	require.Len(t, v.Notes, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{v.Notes[0].ID, v.Notes[1].ID, v.Notes[2].ID})
}

func TestSelectionStaysStickyAcrossReordering(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(
		core.Note{ID: "a", Body: "a", CreatedAt: 1},
		core.Note{ID: "b", Body: "b", CreatedAt: 2},
	)
	c := startCore(t, store)
	waitCurrent(t, c, "b")

	require.NoError(t, c.SelectNote(ctx, "a"))
	require.NoError(t, store.Store.MergeUpdate(ctx, "b", core.UpdateFields{Body: "b2", UpdatedAt: 99}))

	require.Eventually(t, func() bool {
		v := c.View()
		return len(v.Notes) == 2 && v.Notes[0].Body == "b2"
	}, waitFor, tick)
	n, _ := c.CurrentNote()
	assert.Equal(t, "a", n.ID)
}

func TestDeletingSelectedNoteRepoints(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(
		core.Note{ID: "a", Body: "a", CreatedAt: 1},
		core.Note{ID: "b", Body: "b", CreatedAt: 2},
	)
	c := startCore(t, store)
	waitCurrent(t, c, "b")

	require.NoError(t, c.DeleteNote(ctx, "b"))
	waitCurrent(t, c, "a")
	assert.Equal(t, "a", c.View().Buffer)

	require.NoError(t, c.DeleteNote(ctx, "a"))
	require.Eventually(t, func() bool { return len(c.View().Notes) == 0 }, waitFor, tick)
	_, ok := c.CurrentNote()
	assert.False(t, ok)

	err := c.DeleteNote(ctx, "a")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateNoteSelectsNewNote(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "a", CreatedAt: 1, UpdatedAt: 10})
	c := startCore(t, store, reconcile.WithClock(fixedClock(2)))
	waitCurrent(t, c, "a")

	id, err := c.CreateNote(ctx)
	require.NoError(t, err)

	waitCurrent(t, c, id)
	assert.Equal(t, reconcile.DefaultBody, c.View().Buffer)
	n, _ := store.Get(id)
	assert.Equal(t, int64(2), n.CreatedAt)
	assert.Zero(t, n.UpdatedAt)
	assert.Empty(t, store.Updates(), "selecting a new note is not an edit")
}

func TestCreateNoteWaitsForConfirmingSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &manualStore{}
	c := startCore(t, store)

	store.push(core.Note{ID: "a", Body: "a", CreatedAt: 1, UpdatedAt: 500})
	waitCurrent(t, c, "a")

	id, err := c.CreateNote(ctx)
	require.NoError(t, err)

	// A snapshot emitted before the store saw the new note must not lose it.
	before := ingests(c)
	store.push(core.Note{ID: "a", Body: "a", CreatedAt: 1, UpdatedAt: 500})
	require.Eventually(t, func() bool { return ingests(c) > before }, waitFor, tick)
	n, _ := c.CurrentNote()
	assert.Equal(t, "a", n.ID)

	store.push(
		core.Note{ID: "a", Body: "a", CreatedAt: 1, UpdatedAt: 500},
		core.Note{ID: id, Body: reconcile.DefaultBody, CreatedAt: 2},
	)
	waitCurrent(t, c, id)
	assert.Equal(t, reconcile.DefaultBody, c.View().Buffer)
}

func TestCreatedNoteThatNeverArrivesStopsBeingAwaited(t *testing.T) {
	ctx := context.Background()
	store := &manualStore{}
	var nowMs atomic.Int64
	nowMs.Store(1000)
	clock := func() time.Time { return time.UnixMilli(nowMs.Load()) }
	c := startCore(t, store, reconcile.WithClock(clock), reconcile.WithAwaitTimeout(time.Second))

	a := core.Note{ID: "a", Body: "a", CreatedAt: 1, UpdatedAt: 500}
	store.push(a)
	waitCurrent(t, c, "a")

	id, err := c.CreateNote(ctx)
	require.NoError(t, err)
	awaiting := func() string { return c.State().(reconcile.CoreState).AwaitingID }
	assert.Equal(t, id, awaiting())

	before := ingests(c)
	store.push(a)
	require.Eventually(t, func() bool { return ingests(c) > before }, waitFor, tick)
	assert.Equal(t, id, awaiting(), "a snapshot inside the wait keeps the note awaited")

	// Another client deleted the note before its echo reached us.
	nowMs.Add(2000)
	store.push(a)
	require.Eventually(t, func() bool { return awaiting() == "" }, waitFor, tick)

	before = ingests(c)
	store.push(a, core.Note{ID: id, Body: "late", CreatedAt: 2})
	require.Eventually(t, func() bool { return ingests(c) > before }, waitFor, tick)
	n, _ := c.CurrentNote()
	assert.Equal(t, "a", n.ID, "a note no longer awaited must not steal the selection")
}

func TestCreateNoteFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "a", CreatedAt: 1})
	c := startCore(t, store)
	waitCurrent(t, c, "a")

	offline := errors.New("offline")
	store.SetFault(func(op, id string) error {
		if op == core.OpCreate {
			return offline
		}
		return nil
	})

	id, err := c.CreateNote(ctx)
	assert.Empty(t, id)
	assert.ErrorIs(t, err, offline)
	var se *core.StoreError
	assert.ErrorAs(t, err, &se)

	assert.Never(t, func() bool { return len(c.View().Notes) != 1 }, 4*quiescence, tick)
	n, _ := c.CurrentNote()
	assert.Equal(t, "a", n.ID)
}

func TestFailedWriteKeepsBufferAndRetriesOnNextEdit(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "a", CreatedAt: 1})
	c := startCore(t, store)
	waitCurrent(t, c, "a")

	store.SetFault(func(op, id string) error {
		if op == core.OpUpdate {
			return core.ErrUnavailable
		}
		return nil
	})
	require.NoError(t, c.EditBuffer(ctx, "first try"))
	require.Eventually(t, func() bool {
		return c.State().(reconcile.CoreState).FailedWrites == 1
	}, waitFor, tick)
	assert.Equal(t, "first try", c.View().Buffer)
	assert.Contains(t, c.State().(reconcile.CoreState).LastError, "unavailable")

	store.SetFault(nil)
	require.NoError(t, c.EditBuffer(ctx, "second try"))
	require.Eventually(t, func() bool {
		n, _ := store.Get("a")
		return n.Body == "second try"
	}, waitFor, tick)
}

func TestFlushWritesImmediately(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "a", CreatedAt: 1})
	c := startCore(t, store, reconcile.WithQuiescence(time.Hour))
	waitCurrent(t, c, "a")

	require.NoError(t, c.Flush(ctx), "flush with nothing pending is a no-op")
	assert.Empty(t, store.Updates())

	require.NoError(t, c.EditBuffer(ctx, "now"))
	require.NoError(t, c.Flush(ctx))

	require.Len(t, store.Updates(), 1)
	n, _ := store.Get("a")
	assert.Equal(t, "now", n.Body)
	assert.False(t, c.View().Pending)
}

func TestCloseFlushesPendingWrite(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "a", CreatedAt: 1})
	c := reconcile.New(store, reconcile.WithQuiescence(time.Hour))
	require.NoError(t, c.Start(ctx))
	waitCurrent(t, c, "a")

	require.NoError(t, c.EditBuffer(ctx, "last words"))
	require.NoError(t, c.Close(ctx))

	n, _ := store.Get("a")
	assert.Equal(t, "last words", n.Body)
	assert.ErrorIs(t, c.EditBuffer(ctx, "too late"), reconcile.ErrClosed)
}

func TestEditWithoutSelectionOnlyTouchesBuffer(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	c := startCore(t, store)

	require.Eventually(t, func() bool { return ingests(c) > 0 }, waitFor, tick)
	require.NoError(t, c.EditBuffer(ctx, "nowhere to go"))

	assert.Equal(t, "nowhere to go", c.View().Buffer)
	assert.False(t, c.View().Pending)
	assert.Never(t, func() bool { return len(store.Updates()) > 0 }, 4*quiescence, tick)
}

func TestSelectUnknownNote(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore(core.Note{ID: "a", Body: "a", CreatedAt: 1})
	c := startCore(t, store)
	waitCurrent(t, c, "a")

	err := c.SelectNote(ctx, "ghost")
	assert.ErrorIs(t, err, reconcile.ErrUnknownNote)
	n, _ := c.CurrentNote()
	assert.Equal(t, "a", n.ID)
}

func TestOperationsBeforeStart(t *testing.T) {
	ctx := context.Background()
	c := reconcile.New(newRecordingStore())

	assert.ErrorIs(t, c.SelectNote(ctx, "a"), reconcile.ErrNotStarted)
	assert.ErrorIs(t, c.EditBuffer(ctx, "x"), reconcile.ErrNotStarted)
	_, err := c.CreateNote(ctx)
	assert.ErrorIs(t, err, reconcile.ErrNotStarted)
	assert.ErrorIs(t, c.DeleteNote(ctx, "a"), reconcile.ErrNotStarted)

	require.NoError(t, c.Close(ctx))
	assert.ErrorIs(t, c.Start(ctx), reconcile.ErrClosed)
}

func TestWatchDeliversViews(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newRecordingStore(core.Note{ID: "a", Body: "hello", CreatedAt: 1})
	c := startCore(t, store)
	views := c.Watch(ctx)

	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return v.Current != nil && v.Buffer == "hello"
		default:
			return false
		}
	}, waitFor, tick)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-views:
			return !ok
		default:
			return false
		}
	}, waitFor, tick)
}

func TestSelectionInvariantOverRandomSnapshots(t *testing.T) {
	store := &manualStore{}
	c := startCore(t, store)
	rng := rand.New(rand.NewSource(42))
	pool := []string{"a", "b", "c", "d", "e"}

	for round := 0; round < 50; round++ {
		var notes []core.Note
		for _, id := range pool {
			if rng.Intn(2) == 0 {
				notes = append(notes, core.Note{ID: id, Body: id, CreatedAt: int64(rng.Intn(100)), UpdatedAt: int64(rng.Intn(100))})
			}
		}

		before := ingests(c)
		store.push(notes...)
		require.Eventually(t, func() bool { return ingests(c) > before }, waitFor, tick)

		v := c.View()
		if len(notes) == 0 {
			assert.Nil(t, v.Current, "round %d", round)
			continue
		}
		require.NotNil(t, v.Current, "round %d", round)
		found := false
		for _, n := range notes {
			found = found || n.ID == v.Current.ID
		}
		assert.True(t, found, "round %d: current %q not in snapshot", round, v.Current.ID)

		if rng.Intn(3) == 0 {
			pick := notes[rng.Intn(len(notes))].ID
			require.NoError(t, c.SelectNote(context.Background(), pick))
			assert.Equal(t, pick, c.View().Buffer, "buffer holds the selected body")
		}
	}
}

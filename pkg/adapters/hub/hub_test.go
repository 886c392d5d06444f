package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/jot/pkg/core"
)

type recorder struct {
	mu    sync.Mutex
	snaps [][]core.Note
}

func (r *recorder) record(notes []core.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, notes)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() []core.Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func TestHub_DeliversPrimedSnapshotOnSubscribe(t *testing.T) {
	h := New(nil)
	h.Publish([]core.Note{{ID: "a", Body: "hello"}})

	rec := &recorder{}
	unsub := h.Subscribe(context.Background(), rec.record)
	defer unsub()

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", rec.last()[0].Body)
}

func TestHub_SuppressesDuplicates(t *testing.T) {
	h := New(nil)
	rec := &recorder{}
	unsub := h.Subscribe(context.Background(), rec.record)
	defer unsub()

	snap := []core.Note{{ID: "a", Body: "x"}}
	h.Publish(snap)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	h.Publish([]core.Note{{ID: "a", Body: "x"}})
	assert.Never(t, func() bool { return rec.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestHub_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	h := New(nil)

	release := make(chan struct{})
	rec := &recorder{}
	unsub := h.Subscribe(context.Background(), func(notes []core.Note) {
		<-release
		rec.record(notes)
	})
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			h.Publish([]core.Note{{ID: "a", CreatedAt: int64(i)}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	close(release)

	// The final snapshot always arrives, intermediate ones may be coalesced.
	require.Eventually(t, func() bool {
		last := rec.last()
		return len(last) == 1 && last[0].CreatedAt == 49
	}, time.Second, 5*time.Millisecond)
}

func TestHub_UnsubscribeAndContext(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	h.Subscribe(ctx, func([]core.Note) {})
	unsub := h.Subscribe(context.Background(), func([]core.Note) {})
	assert.Equal(t, 2, h.Len())

	cancel()
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.Equal(t, 0, h.Len())
}

func TestHub_CloseStopsDelivery(t *testing.T) {
	h := New(nil)
	rec := &recorder{}
	h.Subscribe(context.Background(), rec.record)

	h.Close()
	h.Publish([]core.Note{{ID: "a"}})

	assert.Never(t, func() bool { return rec.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	_, primed := h.Last()
	assert.False(t, primed)
}

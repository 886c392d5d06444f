package reconcile

import (
	"context"
	"slices"
	"time"

	"github.com/aretw0/jot/pkg/core"
)

// View is the read-only state handed to the presentation layer.
type View struct {
	// Notes is the list ordered most recently updated first.
	Notes []core.Note
	// Current is the selected note, nil when the list is empty.
	Current *core.Note
	// Buffer is the text the user is editing.
	Buffer string
	// Pending reports an armed debounce timer.
	Pending bool
	// PendingID and PendingDeadline describe the armed write: the note it
	// targets and when it fires.
	PendingID       string
	PendingDeadline time.Time
}

// View returns the latest published view.
func (c *Core) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.clone()
}

// Watch returns a channel that receives the current view and then every later
// one. Slow readers only ever see the newest view. The channel is closed when ctx
// is done or the core is closed.
func (c *Core) Watch(ctx context.Context) <-chan View {
	ch := make(chan View, 1)

	c.mu.Lock()
	select {
	case <-c.stop:
		c.mu.Unlock()
		close(ch)
		return ch
	default:
	}
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	ch <- c.view.clone()
	c.mu.Unlock()

	context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(ch)
		}
	})
	return ch
}

// publish snapshots loop state into a View and offers it to every watcher.
func (c *Core) publish() {
	v := View{
		Notes:  slices.Clone(c.sorted),
		Buffer: c.buffer,
	}
	if w, ok := c.debounce.pendingWrite(); ok {
		v.Pending = true
		v.PendingID = w.target
		v.PendingDeadline = w.deadline
	}
	if n, ok := c.notes[c.currentID]; ok {
		v.Current = &n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	c.stats.AwaitingID = c.awaitID
	for _, ch := range c.watchers {
		offer(ch, v.clone())
	}
}

func offer(ch chan View, v View) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

func (v View) clone() View {
	out := v
	out.Notes = slices.Clone(v.Notes)
	if v.Current != nil {
		n := *v.Current
		out.Current = &n
	}
	return out
}

package reconcile

import (
	"context"

	"github.com/aretw0/jot/pkg/core"
)

// CreateNote asks the store for a new note and selects it once the store has
// confirmed it. If the confirming snapshot has not arrived yet, the selection
// moves on the first snapshot that contains the new id. The wait is bounded by
// WithAwaitTimeout: a note that never shows up (say, deleted by another client
// before its echo arrived) stops being awaited.
//
// On failure nothing changes locally: the core never holds notes the store has
// not reported.
func (c *Core) CreateNote(ctx context.Context) (string, error) {
	if !c.started.Load() {
		return "", ErrNotStarted
	}

	id, err := c.store.Create(ctx, core.CreateFields{
		Body:      c.cfg.defaultBody,
		CreatedAt: core.Millis(c.now()),
	})
	if err != nil {
		c.log.Warn("create failed", "error", err)
		return "", core.NewStoreError(core.OpCreate, "", err)
	}
	c.log.Debug("note created", "id", id)

	err = c.do(ctx, func() error {
		if _, ok := c.notes[id]; ok {
			c.awaitID = ""
			c.currentID = id
			c.syncBuffer()
			c.publish()
			return nil
		}
		c.awaitID = id
		c.awaitSince = c.now()
		c.publish()
		return nil
	})
	return id, err
}

// DeleteNote asks the store to remove id. The selection is left alone; the
// snapshot that drops the note re-resolves it.
func (c *Core) DeleteNote(ctx context.Context, id string) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	if err := c.store.Delete(ctx, id); err != nil {
		c.log.Warn("delete failed", "id", id, "error", err)
		return core.NewStoreError(core.OpDelete, id, err)
	}
	c.log.Debug("note deleted", "id", id)
	return nil
}

package reconcile

import (
	"context"
	"fmt"

	"github.com/aretw0/jot/pkg/core"
)

// resolveSelection keeps currentID pointing into the list. An awaited id (a note
// this client just created) wins as soon as it shows up; otherwise a dangling or
// empty selection falls back to the most recently updated note.
func (c *Core) resolveSelection() {
	if c.awaitID != "" {
		if _, ok := c.notes[c.awaitID]; ok {
			c.currentID = c.awaitID
			c.awaitID = ""
		} else if c.now().Sub(c.awaitSince) >= c.cfg.awaitTimeout {
			c.log.Debug("created note never arrived", "id", c.awaitID, "waited", c.now().Sub(c.awaitSince))
			c.awaitID = ""
		}
	}
	if _, ok := c.notes[c.currentID]; ok {
		return
	}
	if len(c.sorted) == 0 {
		c.currentID = ""
		return
	}
	c.currentID = c.sorted[0].ID
}

// syncBuffer copies the selected note into the buffer when the selection changed
// identity since the last copy. Data changes to the same note never reach the
// buffer.
func (c *Core) syncBuffer() {
	n, ok := c.notes[c.currentID]
	if !ok {
		c.observedID = ""
		return
	}
	if n.ID == c.observedID {
		return
	}
	c.observedID = n.ID

	// Coming back to a note whose edit has not been stored yet shows the edit,
	// not the stale remote body.
	if text, unsaved := c.unsavedText(n.ID); unsaved {
		c.buffer = text
		return
	}
	c.buffer = n.Body
}

// CurrentNote returns the selected note, if any.
func (c *Core) CurrentNote() (core.Note, bool) {
	v := c.View()
	if v.Current == nil {
		return core.Note{}, false
	}
	return *v.Current, true
}

// SelectNote makes id the selected note and loads it into the edit buffer.
// A pending write for the previously selected note still goes to that note.
func (c *Core) SelectNote(ctx context.Context, id string) error {
	return c.do(ctx, func() error {
		if _, ok := c.notes[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNote, id)
		}
		c.awaitID = ""
		c.currentID = id
		c.syncBuffer()
		c.publish()
		return nil
	})
}

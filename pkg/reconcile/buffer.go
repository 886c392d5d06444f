package reconcile

import (
	"context"

	"github.com/aretw0/jot/pkg/core"
)

// EditBuffer replaces the buffer with text and restarts the debounce timer for
// the selected note. Without a selected note only the buffer changes.
func (c *Core) EditBuffer(ctx context.Context, text string) error {
	return c.do(ctx, func() error {
		c.buffer = text
		if c.currentID != "" {
			c.arm(c.currentID, text)
		}
		c.publish()
		return nil
	})
}

// Flush issues the pending write immediately, if there is one, and waits for the
// store to answer.
func (c *Core) Flush(ctx context.Context) error {
	var result chan error
	err := c.do(ctx, func() error {
		w, ok := c.debounce.takeNow()
		if !ok {
			return nil
		}
		result = make(chan error, 1)
		c.write(w, result)
		c.publish()
		return nil
	})
	if err != nil || result == nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// arm schedules the write of text to target. A pending write for another note
// is issued right away so that at most one timer is armed and no captured edit
// is dropped.
func (c *Core) arm(target, text string) {
	if w, ok := c.debounce.pendingWrite(); ok && w.target != target {
		c.debounce.takeNow()
		c.log.Debug("issuing pending write early", "id", w.target, "next", target)
		c.write(w, nil)
	}
	now := c.now()
	w := pendingWrite{
		target:   target,
		text:     text,
		deadline: now.Add(c.cfg.quiescence),
	}
	c.debounce.arm(w, c.cfg.quiescence, func(generation uint64) {
		c.post(func() { c.fire(generation) })
	})
}

func (c *Core) fire(generation uint64) {
	w, ok := c.debounce.take(generation)
	if !ok {
		return
	}
	c.write(w, nil)
	c.publish()
}

// write hands w to the store on its own goroutine. The updatedAt stamp is taken
// when the write fires.
func (c *Core) write(w pendingWrite, result chan error) {
	job := &writeJob{
		write:  w,
		done:   make(chan struct{}),
		result: result,
	}
	if prev, ok := c.inflight[w.target]; ok {
		job.prev = prev.done
	}
	c.inflight[w.target] = job

	fields := core.UpdateFields{Body: w.text, UpdatedAt: core.Millis(c.now())}

	c.mu.Lock()
	c.stats.Writes++
	c.mu.Unlock()

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		defer close(job.done)

		if job.prev != nil {
			<-job.prev
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.writeTimeout)
		err := c.store.MergeUpdate(ctx, w.target, fields)
		cancel()
		if err != nil {
			err = core.NewStoreError(core.OpUpdate, w.target, err)
		}

		c.post(func() { c.writeDone(job, err) })
		if job.result != nil {
			job.result <- err
		}
	}()
}

func (c *Core) writeDone(job *writeJob, err error) {
	if c.inflight[job.write.target] == job {
		delete(c.inflight, job.write.target)
	}
	if err != nil {
		c.mu.Lock()
		c.stats.FailedWrites++
		c.stats.LastError = err.Error()
		c.mu.Unlock()
		c.log.Warn("merge write failed", "id", job.write.target, "error", err)
	} else {
		c.log.Debug("merge write stored", "id", job.write.target, "bytes", len(job.write.text))
	}
	c.publish()
}

// unsavedText returns text for id that has not been confirmed by the store yet:
// the pending debounced write first, then the newest write in flight.
func (c *Core) unsavedText(id string) (string, bool) {
	if text, ok := c.debounce.pendingFor(id); ok {
		return text, true
	}
	if job, ok := c.inflight[id]; ok {
		return job.write.text, true
	}
	return "", false
}

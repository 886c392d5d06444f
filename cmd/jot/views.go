package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/aretw0/jot"
	"github.com/aretw0/jot/pkg/core"
	"github.com/aretw0/jot/pkg/reconcile"
)

// waitFor blocks until the notebook publishes a view satisfying ok.
func waitFor(ctx context.Context, nb *jot.Notebook, timeout time.Duration, ok func(reconcile.View) bool) (reconcile.View, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for v := range nb.Watch(ctx) {
		if ok(v) {
			return v, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return reconcile.View{}, fmt.Errorf("waiting for store: %w", err)
	}
	return reconcile.View{}, reconcile.ErrClosed
}

func hasNote(id string) func(reconcile.View) bool {
	return func(v reconcile.View) bool {
		return slices.ContainsFunc(v.Notes, func(n core.Note) bool { return n.ID == id })
	}
}

func selected(id string) func(reconcile.View) bool {
	return func(v reconcile.View) bool {
		return v.Current != nil && v.Current.ID == id
	}
}

// firstSnapshot subscribes to store just long enough to read its current list.
func firstSnapshot(ctx context.Context, store core.Store, timeout time.Duration) ([]core.Note, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	first := make(chan []core.Note, 1)
	unsubscribe, err := store.Subscribe(ctx, func(notes []core.Note) {
		select {
		case first <- notes:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	select {
	case notes := <-first:
		return core.SortByRecency(notes), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for store: %w", ctx.Err())
	}
}

// printNotes writes one line per note: a marker for currentID, the id, the
// recency timestamp and the title.
func printNotes(w io.Writer, notes []core.Note, currentID string) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "(no notes)")
		return
	}
	for _, n := range notes {
		marker := " "
		if n.ID == currentID {
			marker = "*"
		}
		stamp := time.UnixMilli(n.RecencyKey()).Local().Format(time.DateTime)
		fmt.Fprintf(w, "%s %s  %s  %s\n", marker, n.ID, stamp, n.Title())
	}
}

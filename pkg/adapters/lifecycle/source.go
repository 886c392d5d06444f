// Package lifecycle exposes reconcile views as a lifecycle event source.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/jot/pkg/reconcile"
)

// ViewEvent carries one published view.
type ViewEvent struct {
	View reconcile.View
}

// String implements lifecycle.Event.
func (e ViewEvent) String() string {
	current := "-"
	if e.View.Current != nil {
		current = e.View.Current.ID
	}
	return fmt.Sprintf("view notes=%d current=%s pending=%t", len(e.View.Notes), current, e.View.Pending)
}

type viewSource struct {
	views <-chan reconcile.View
	out   chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits a ViewEvent per view read from
// views, typically the channel returned by Core.Watch.
func NewSource(views <-chan reconcile.View) lifecycle.Source {
	return &viewSource{
		views: views,
		out:   make(chan lifecycle.Event),
	}
}

func (s *viewSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *viewSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-s.views:
				if !ok {
					return nil
				}
				select {
				case s.out <- ViewEvent{View: v}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}

package platform

import (
	"context"
	"errors"
	"io"

	"github.com/aretw0/jot/pkg/core"
	"github.com/aretw0/jot/pkg/reconcile"
)

// Notebook is a started reconcile core together with the store it reads.
type Notebook struct {
	*reconcile.Core
	Store core.Store

	owned bool
}

// New opens the store named by uri and starts a reconcile core on it.
//
//	nb, err := platform.New(ctx, "./notes", platform.WithQuiescence(time.Second))
func New(ctx context.Context, uri string, opts ...Option) (*Notebook, error) {
	o := resolveOptions(opts)

	store, err := openStore(ctx, uri, o)
	if err != nil {
		return nil, err
	}
	owned := o.store == nil

	coreOpts := []reconcile.Option{
		reconcile.WithLogger(o.logger),
		reconcile.WithQuiescence(o.durationValue("quiescence")),
	}
	if body, ok := o.config["default_body"].(string); ok {
		coreOpts = append(coreOpts, reconcile.WithDefaultBody(body))
	}

	c := reconcile.New(store, coreOpts...)
	if err := c.Start(ctx); err != nil {
		_ = c.Close(ctx)
		if owned {
			closeStore(store)
		}
		return nil, err
	}
	return &Notebook{Core: c, Store: store, owned: owned}, nil
}

// Close flushes and stops the core, then closes the store if New opened it.
func (n *Notebook) Close(ctx context.Context) error {
	err := n.Core.Close(ctx)
	if n.owned {
		err = errors.Join(err, closeStore(n.Store))
	}
	return err
}

func closeStore(store core.Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

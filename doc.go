// Package jot is the composition root of the jot note-taking client.
//
// It wires the reconciliation core (pkg/reconcile) to a store adapter picked
// from a URI:
//
//   - a directory of Markdown files with YAML frontmatter, optionally versioned with git
//   - a SQLite database ("sqlite:notes.db" or any *.db path)
//   - a jot server over websocket ("ws://host:7070")
//   - an in-process map ("mem:")
//
// The core keeps a live, recency-ordered list of notes, a sticky selection and
// an edit buffer whose changes are written back after a quiet period.
//
// Usage:
//
//	nb, err := jot.New(ctx, "./notes",
//		jot.WithQuiescence(500*time.Millisecond),
//		jot.WithLogger(logger),
//	)
//	defer nb.Close(ctx)
//
//	id, err := nb.CreateNote(ctx)
//	err = nb.EditBuffer(ctx, "# Groceries\nmilk")
package jot

package core

import "context"

// Unsubscribe stops delivery to a subscriber. Calling it more than once is a no-op.
type Unsubscribe func()

// Store defines the contract between the client core and a real-time note store.
// Adhering to this interface keeps the core independent of the transport
// (local files, SQLite, a remote server, ...).
type Store interface {
	// Subscribe delivers the full current list of notes promptly and then again
	// after every change, serially per subscriber.
	Subscribe(ctx context.Context, fn func([]Note)) (Unsubscribe, error)

	// Create persists a new note and returns the id the store assigned to it.
	Create(ctx context.Context, f CreateFields) (string, error)

	// MergeUpdate writes the given fields of an existing note, leaving every
	// other field untouched.
	MergeUpdate(ctx context.Context, id string, f UpdateFields) error

	// Delete removes a note.
	Delete(ctx context.Context, id string) error
}

// Store operation names, used in StoreError and in adapter wire formats.
const (
	OpSubscribe = "subscribe"
	OpCreate    = "create"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

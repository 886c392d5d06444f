// Package reconcile keeps a local working copy of a note collection in step with
// a real-time store while the user edits one note at a time.
//
// A Core owns four pieces of state: the note list (replaced wholesale by every
// store snapshot), the selected note id, the edit buffer the user types into, and
// a debounce timer that turns bursts of edits into a single merge write.
//
// All of that state is touched from one goroutine only. Snapshots, user intents
// and timer expirations are queued as events and applied in order; calls into the
// store run on their own goroutines and report back through the same queue.
//
// The edit buffer is refreshed from the store only when the selected note changes
// identity. Echoes of the client's own writes, and remote edits of the note being
// typed into, never overwrite unsaved keystrokes.
package reconcile

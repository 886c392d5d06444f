// Package remote carries a core.Store over a websocket.
//
// A Server hosts any store. A Client dialled to it is itself a core.Store, so the
// reconciliation core cannot tell a remote store from a local one. Frames are
// JSON text messages:
//
//	snapshot  server -> client  the full note list, on subscribe and on every change
//	request   client -> server  create, update or delete, correlated by id
//	response  server -> client  the outcome of one request
package remote

import (
	"github.com/aretw0/jot/pkg/core"
)

// Frame types.
const (
	FrameSnapshot = "snapshot"
	FrameRequest  = "request"
	FrameResponse = "response"
)

// Frame is the single message shape of the protocol.
type Frame struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Op        string      `json:"op,omitempty"`
	NoteID    string      `json:"noteId,omitempty"`
	Body      string      `json:"body,omitempty"`
	CreatedAt int64       `json:"createdAt,omitempty"`
	UpdatedAt int64       `json:"updatedAt,omitempty"`
	Notes     []core.Note `json:"notes,omitempty"`
	Error     *WireError  `json:"error,omitempty"`
}

// WireError is a store error flattened for the wire. Kind is one of the values
// returned by core.Kind; Message is only set for errors without a kind.
type WireError struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	kind := core.Kind(err)
	if kind != "" {
		return &WireError{Kind: kind}
	}
	return &WireError{Message: err.Error()}
}

func (e *WireError) err() error {
	if e == nil {
		return nil
	}
	return core.FromKind(e.Kind, e.Message)
}

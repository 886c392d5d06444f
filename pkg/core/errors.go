package core

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrNotFound     = errors.New("note not found")
	ErrUnavailable  = errors.New("store unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrReadOnly     = errors.New("store is in read-only mode")
)

// StoreError is the only error kind a store hands back to the core.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err unless it already is a StoreError.
func NewStoreError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, ID: id, Err: err}
}

// Kind reports which sentinel err matches, or "" when none does.
// It is used by adapters that carry errors across a wire.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrReadOnly):
		return "read_only"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return ""
}

// FromKind is the inverse of Kind. Unknown kinds map to a plain error with msg.
func FromKind(kind, msg string) error {
	var base error
	switch kind {
	case "not_found":
		base = ErrNotFound
	case "unauthorized":
		base = ErrUnauthorized
	case "read_only":
		base = ErrReadOnly
	case "unavailable":
		base = ErrUnavailable
	default:
		return errors.New(msg)
	}
	if msg == "" || msg == base.Error() {
		return base
	}
	return fmt.Errorf("%w: %s", base, msg)
}

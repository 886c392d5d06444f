// Package core holds the note record and the contract every store adapter implements.
package core

import (
	"cmp"
	"slices"
	"time"
)

// Note is the central entity of the domain.
// It is owned by the store: the client only ever holds copies of it.
type Note struct {
	ID        string `json:"id" yaml:"-"`
	Body      string `json:"body" yaml:"-"`
	CreatedAt int64  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt int64  `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"` // zero until the first edit is persisted
}

// RecencyKey is the timestamp notes are ordered by: the last write, or creation
// when the note was never edited.
func (n Note) RecencyKey() int64 {
	if n.UpdatedAt != 0 {
		return n.UpdatedAt
	}
	return n.CreatedAt
}

// Title returns the first non-empty line of the body with markdown heading
// markers stripped.
func (n Note) Title() string {
	for _, line := range splitLines(n.Body) {
		line = trimHeading(line)
		if line != "" {
			return line
		}
	}
	return ""
}

// CreateFields is the payload of a create call.
type CreateFields struct {
	Body      string `json:"body"`
	CreatedAt int64  `json:"createdAt"`
}

// UpdateFields is the payload of a merge update. Fields not listed here are
// left untouched by the store.
type UpdateFields struct {
	Body      string `json:"body"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SortByRecency returns a copy of notes ordered most recently updated first.
// Ties fall back to creation order and then to the id, so the result is total.
func SortByRecency(notes []Note) []Note {
	sorted := slices.Clone(notes)
	slices.SortStableFunc(sorted, func(a, b Note) int {
		if c := cmp.Compare(b.RecencyKey(), a.RecencyKey()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return sorted
}

// Millis converts t to epoch milliseconds, the unit of every persisted timestamp.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

package reconcile

import (
	"time"

	"github.com/aretw0/introspection"
)

// CoreState exposes internal state for observability.
type CoreState struct {
	Notes           int       `json:"notes"`
	CurrentID       string    `json:"current_id,omitempty"`
	AwaitingID      string    `json:"awaiting_id,omitempty"`
	Debounce        string    `json:"debounce"`
	PendingID       string    `json:"pending_id,omitempty"`
	PendingDeadline time.Time `json:"pending_deadline,omitzero"`
	Ingests         int       `json:"ingests"`
	Writes          int       `json:"writes"`
	FailedWrites    int       `json:"failed_writes"`
	LastError       string    `json:"last_error,omitempty"`
	QuiescenceMs    int64     `json:"quiescence_ms"`
}

// State implements introspection.Introspectable.
func (c *Core) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := CoreState{
		Notes:           len(c.view.Notes),
		AwaitingID:      c.stats.AwaitingID,
		Debounce:        stateIdle.String(),
		PendingID:       c.view.PendingID,
		PendingDeadline: c.view.PendingDeadline,
		Ingests:         c.stats.Ingests,
		Writes:          c.stats.Writes,
		FailedWrites:    c.stats.FailedWrites,
		LastError:       c.stats.LastError,
		QuiescenceMs:    c.cfg.quiescence.Milliseconds(),
	}
	if c.view.Current != nil {
		state.CurrentID = c.view.Current.ID
	}
	if c.view.Pending {
		state.Debounce = statePending.String()
	}
	return state
}

// ComponentType implements introspection.Component.
func (c *Core) ComponentType() string {
	return "reconcile-core"
}

var _ introspection.Introspectable = (*Core)(nil)
var _ introspection.Component = (*Core)(nil)

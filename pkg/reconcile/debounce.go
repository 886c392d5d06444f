package reconcile

import "time"

type debounceState int

const (
	stateIdle debounceState = iota
	statePending
)

func (s debounceState) String() string {
	if s == statePending {
		return "pending"
	}
	return "idle"
}

// pendingWrite is captured when the timer is armed. The target never follows
// later selection changes.
type pendingWrite struct {
	target   string
	text     string
	deadline time.Time
}

// debouncer is a trailing-edge debounce state machine:
//
//	Idle    --arm-->  Pending
//	Pending --arm-->  Pending (timer restarted, generation bumped)
//	Pending --take--> Idle    (only for the current generation)
//
// It is owned by the event loop and is not safe for concurrent use.
type debouncer struct {
	state      debounceState
	pending    pendingWrite
	generation uint64
	timer      *time.Timer
}

// arm replaces any pending write with w and schedules fire(generation) after d.
func (d *debouncer) arm(w pendingWrite, after time.Duration, fire func(generation uint64)) {
	d.stopTimer()
	d.generation++
	gen := d.generation
	d.state = statePending
	d.pending = w
	d.timer = time.AfterFunc(after, func() { fire(gen) })
}

// take moves Pending to Idle and returns the captured write. Stale generations
// come from timers that were cancelled after they had already fired.
func (d *debouncer) take(generation uint64) (pendingWrite, bool) {
	if d.state != statePending || generation != d.generation {
		return pendingWrite{}, false
	}
	d.stopTimer()
	w := d.pending
	d.state = stateIdle
	d.pending = pendingWrite{}
	return w, true
}

// takeNow is take for whatever is pending right now.
func (d *debouncer) takeNow() (pendingWrite, bool) {
	return d.take(d.generation)
}

// pendingWrite returns the armed write, if any.
func (d *debouncer) pendingWrite() (pendingWrite, bool) {
	return d.pending, d.state == statePending
}

// pendingFor returns the unsaved text for target, if the pending write targets it.
func (d *debouncer) pendingFor(target string) (string, bool) {
	if d.state == statePending && d.pending.target == target {
		return d.pending.text, true
	}
	return "", false
}

func (d *debouncer) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

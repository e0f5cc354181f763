// Package event defines the scheduled event entity: an immutable record of
// identity, schedule, and optional callback behaviour, plus the derived
// due-state predicates the scheduler evaluates on every tick.
//
// Design rules:
//   - An Event never changes after construction except for its one-way
//     warning-sent flag. Rescheduling is modelled as building a fresh Event
//     with Rescheduled, never as mutating the schedule in place.
//   - IDs are ULID strings: time-sortable and globally unique.
//   - Construction validates nothing. An event with a WarnAction but no
//     positive WarnBefore is legal; it simply never reaches its warning
//     stage because HasWarning gates the predicate.
package event

import (
	"time"

	"github.com/hickagpt/agenda/internal/ident"
)

// Action is a callback invoked by the scheduler with the tick's current
// instant. A nil Action is a no-op, not an error.
type Action func(now time.Time)

// Options carries everything New needs to assemble an Event. All fields are
// optional; the zero value produces an event due at the zero time with a
// fresh ID and no callbacks.
type Options struct {
	// ID is the event's unique identifier. Empty means generate a fresh ULID.
	// Callers supplying their own IDs are trusted to keep them unique.
	ID string

	// Name and Description are display metadata, never interpreted.
	Name        string
	Description string

	// At is the instant the event becomes due for execution.
	At time.Time

	// WarnBefore is how far ahead of At the warning stage opens.
	// Zero (or negative) means the event has no warning stage.
	WarnBefore time.Duration

	// Action runs when the event executes. WarnAction runs when the warning
	// fires. Either may be nil.
	Action     Action
	WarnAction Action
}

// Event is a one-shot scheduled event. Its warning fires at most once and its
// execution exactly once, after which the owning scheduler removes it.
type Event struct {
	id          string
	name        string
	description string
	at          time.Time
	warnBefore  time.Duration
	action      Action
	warnAction  Action

	// warningSent records that the warning stage has occurred. It is set by
	// RunWarning regardless of whether a WarnAction was registered and is
	// never reset on the same instance.
	warningSent bool
}

// New assembles an Event from opts. It performs no validation.
func New(opts Options) *Event {
	id := opts.ID
	if id == "" {
		id = ident.MustNewID()
	}
	return &Event{
		id:          id,
		name:        opts.Name,
		description: opts.Description,
		at:          opts.At,
		warnBefore:  opts.WarnBefore,
		action:      opts.Action,
		warnAction:  opts.WarnAction,
	}
}

// Rescheduled builds a fresh Event at a new time, copying everything else —
// ID, metadata, warning window, callbacks — from src. The new instance starts
// with a clear warning-sent flag, so rescheduling re-arms the warning.
func Rescheduled(src *Event, at time.Time) *Event {
	return &Event{
		id:          src.id,
		name:        src.name,
		description: src.description,
		at:          at,
		warnBefore:  src.warnBefore,
		action:      src.action,
		warnAction:  src.warnAction,
	}
}

// ID returns the event's unique identifier.
func (e *Event) ID() string { return e.id }

// Name returns the display name, possibly empty.
func (e *Event) Name() string { return e.name }

// Description returns the display description, possibly empty.
func (e *Event) Description() string { return e.description }

// At returns the instant the event is due for execution.
func (e *Event) At() time.Time { return e.at }

// WarnBefore returns the warning lead time. Zero means no warning stage.
func (e *Event) WarnBefore() time.Duration { return e.warnBefore }

// HasWarning reports whether the event has a warning stage at all.
// Only a strictly positive WarnBefore opens one.
func (e *Event) HasWarning() bool { return e.warnBefore > 0 }

// WarningSent reports whether the warning stage has already occurred.
func (e *Event) WarningSent() bool { return e.warningSent }

// Due reports whether now has reached or passed the scheduled time. Pure.
func (e *Event) Due(now time.Time) bool {
	return !now.Before(e.at)
}

// WarningDue reports whether now has reached or passed At − WarnBefore.
// Always false for events without a warning stage: the HasWarning gate takes
// precedence over the raw threshold comparison, so a zero WarnBefore does not
// degenerate into "warn at execution time".
func (e *Event) WarningDue(now time.Time) bool {
	if !e.HasWarning() {
		return false
	}
	return !now.Before(e.at.Add(-e.warnBefore))
}

// Run invokes the execution callback if one is registered. It does not mark
// the event complete — removal is the owning scheduler's job.
func (e *Event) Run(now time.Time) {
	if e.action != nil {
		e.action(now)
	}
}

// RunWarning invokes the warning callback if one is registered, then marks
// the warning stage as having occurred. The flag is set even with no
// callback: it tracks that the stage happened, not that anything observable
// did.
func (e *Event) RunWarning(now time.Time) {
	if e.warnAction != nil {
		e.warnAction(now)
	}
	e.warningSent = true
}

// Record is the serialisable snapshot of an event, used by transports and
// the history journal. All timestamps are UTC milliseconds since Unix epoch.
type Record struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Description  string `json:"description,omitempty"`
	At           int64  `json:"at"`
	WarnBeforeMs int64  `json:"warn_before_ms,omitempty"`
	WarningSent  bool   `json:"warning_sent"`
}

// Record returns a snapshot of the event's current state.
func (e *Event) Record() Record {
	return Record{
		ID:           e.id,
		Name:         e.name,
		Description:  e.description,
		At:           e.at.UnixMilli(),
		WarnBeforeMs: e.warnBefore.Milliseconds(),
		WarningSent:  e.warningSent,
	}
}

// Package agenda implements the ordering and update engine at the heart of
// the scheduler: an ordered collection of events keyed by scheduled time,
// with insertion, lookup, cancellation, rescheduling, and the periodic tick
// that fires due warnings and executions.
//
// Core design decisions:
//   - The collection is a plain slice kept sorted by insertion scan. Linear
//     operations are accepted on purpose: the expected population is small
//     and a sub-list priority queue buys nothing at that scale.
//   - Update computes its warning and execution batches from a snapshot of
//     the collection taken before any callback runs, so callbacks may freely
//     schedule or cancel events mid-tick without invalidating iteration and
//     without being retroactively swept into the current tick.
//
// The Scheduler has no internal locking. It is built for a single
// cooperative host loop; multi-threaded callers must serialise every method
// call externally.
package agenda

import (
	"time"

	"github.com/hickagpt/agenda/internal/clock"
	"github.com/hickagpt/agenda/internal/event"
)

// Observer receives an event notification during Update. Execution observers
// see each executed event exactly once, after it has been removed from the
// collection; warning observers see each event whose warning just fired.
// Observers run synchronously on the ticking goroutine and must not block.
type Observer func(ev *event.Event)

// Scheduler is an ordered collection of one-shot events. Events are kept in
// ascending scheduled-time order; among equal times, insertion order is
// preserved.
type Scheduler struct {
	events []*event.Event

	execObservers []Observer
	warnObservers []Observer
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule inserts ev at the first position whose element's scheduled time is
// strictly greater than ev's; if there is none, ev is appended. New events
// that tie an existing time therefore land after all existing equal-time
// events, which keeps ordering stable. Returns ev's ID.
//
// IDs are not checked for uniqueness — callers own that guarantee. With
// duplicate IDs, lookup, cancel, and reschedule all resolve to the first
// match in schedule order.
func (s *Scheduler) Schedule(ev *event.Event) string {
	for i, existing := range s.events {
		if existing.At().After(ev.At()) {
			s.events = append(s.events[:i], append([]*event.Event{ev}, s.events[i:]...)...)
			return ev.ID()
		}
	}
	s.events = append(s.events, ev)
	return ev.ID()
}

// Events returns the collection in schedule order. The slice is a live view
// of internal state, not a snapshot — callers must not modify it.
func (s *Scheduler) Events() []*event.Event {
	return s.events
}

// Len returns the number of currently scheduled events.
func (s *Scheduler) Len() int {
	return len(s.events)
}

// Get returns the first event whose ID matches, or nil if there is none.
func (s *Scheduler) Get(id string) *event.Event {
	for _, ev := range s.events {
		if ev.ID() == id {
			return ev
		}
	}
	return nil
}

// Cancel removes the first event whose ID matches and reports whether a
// removal occurred. Cancelling an unknown ID is not an error.
func (s *Scheduler) Cancel(id string) bool {
	for i, ev := range s.events {
		if ev.ID() == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return true
		}
	}
	return false
}

// Reschedule moves the event with the given ID to a new time. This is a
// replace, not an in-place mutation: the old entry is removed and a fresh
// clone (same ID, metadata, and callbacks) is inserted at its new position.
// Because the clone starts with a clear warning-sent flag, rescheduling
// re-arms the warning. Unknown IDs are a silent no-op.
func (s *Scheduler) Reschedule(id string, at time.Time) {
	old := s.Get(id)
	if old == nil {
		return
	}
	s.Cancel(id)
	s.Schedule(event.Rescheduled(old, at))
}

// Subscribe registers an observer for executed events. Each Update call
// notifies it once per event executed during that tick, immediately after
// the event has been removed from the collection.
func (s *Scheduler) Subscribe(fn Observer) {
	s.execObservers = append(s.execObservers, fn)
}

// SubscribeWarnings registers an observer for fired warnings.
func (s *Scheduler) SubscribeWarnings(fn Observer) {
	s.warnObservers = append(s.warnObservers, fn)
}

// Update runs one tick against the instant reported by c.
//
// Both batches are materialised from the collection state at the start of the
// tick, before any callback runs:
//
//  1. the warning batch — events whose warning is due and not yet sent
//  2. the execution batch — events whose scheduled time has been reached
//
// All warnings fire first. Then each due event, in schedule order, has its
// action run, is removed from the collection, and is announced to execution
// observers — per event, not batched, so a fired event is already absent
// from Events() by the time its own notification arrives.
//
// An event whose warning threshold and scheduled time have both passed in
// the same tick appears in both batches: it receives its warning, then its
// execution, then removal. Events scheduled by a callback during the tick
// are evaluated on the next tick, never this one.
func (s *Scheduler) Update(c clock.Clock) {
	now := c.Now()

	var warnBatch, dueBatch []*event.Event
	for _, ev := range s.events {
		if !ev.WarningSent() && ev.WarningDue(now) {
			warnBatch = append(warnBatch, ev)
		}
		if ev.Due(now) {
			dueBatch = append(dueBatch, ev)
		}
	}

	for _, ev := range warnBatch {
		ev.RunWarning(now)
		for _, fn := range s.warnObservers {
			fn(ev)
		}
	}

	for _, ev := range dueBatch {
		ev.Run(now)
		s.removeByIdentity(ev)
		for _, fn := range s.execObservers {
			fn(ev)
		}
	}
}

// removeByIdentity removes the exact instance ev from the collection.
// Identity removal (not ID match) keeps batch processing correct even when
// a callback has meanwhile scheduled another event carrying the same ID.
func (s *Scheduler) removeByIdentity(ev *event.Event) {
	for i, existing := range s.events {
		if existing == ev {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return
		}
	}
}

// Package history provides a bbolt-backed journal of executed events.
//
// The scheduler forgets an event the moment it executes; the journal is the
// audit trail of what ran and when. It records final event snapshots only —
// pending events are never persisted and do not survive a restart.
//
// bbolt is chosen because it is:
//   - Pure Go (no CGO, no external process)
//   - ACID — the journal is always consistent even after a crash
//   - Single file (history.db inside the data directory)
//   - Well-maintained (used by etcd in production)
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hickagpt/agenda/internal/event"
)

var bucketExecutions = []byte("executions")

// ErrNotFound is returned when no journal entry exists for an event ID.
var ErrNotFound = errors.New("history: not found")

// Entry is one journal record: the event's final snapshot plus the instant
// the update pass executed it. Timestamps are UTC milliseconds.
type Entry struct {
	Event      event.Record `json:"event"`
	ExecutedAt int64        `json:"executed_at"`
}

// Journal is the on-disk store of executed events.
// All methods are safe for concurrent use (bbolt serialises writers).
type Journal struct {
	db *bbolt.DB
}

// Open opens (or creates) the journal at path.
func Open(path string) (*Journal, error) {
	opts := &bbolt.Options{Timeout: 0} // non-blocking open
	db, err := bbolt.Open(path, 0o640, opts)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketExecutions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: init bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the underlying database file.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records that rec executed at executedAt. A second append with the
// same event ID overwrites the first; IDs are unique per event lifetime, so
// this only happens when an event was rescheduled after executing under a
// duplicate ID, which callers are trusted to avoid.
func (j *Journal) Append(rec event.Record, executedAt time.Time) error {
	entry := Entry{Event: rec, ExecutedAt: executedAt.UnixMilli()}
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history: marshal entry for %s: %w", rec.ID, err)
	}

	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketExecutions).Put([]byte(rec.ID), val)
	})
}

// Get retrieves the journal entry for an event ID.
// Returns ErrNotFound if the event never executed (or history was disabled).
func (j *Journal) Get(id string) (Entry, error) {
	var entry Entry

	err := j.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(bucketExecutions).Get([]byte(id))
		if val == nil {
			return ErrNotFound
		}
		return json.Unmarshal(val, &entry)
	})

	return entry, err
}

// Recent returns up to n entries, most recently executed first. The scan is
// linear over the journal; history is an audit surface, not a hot path.
func (j *Journal) Recent(n int) ([]Entry, error) {
	var entries []Entry

	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketExecutions).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, k int) bool {
		if entries[i].ExecutedAt != entries[k].ExecutedAt {
			return entries[i].ExecutedAt > entries[k].ExecutedAt
		}
		return entries[i].Event.ID > entries[k].Event.ID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// Len returns the number of journal entries.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketExecutions).Stats().KeyN
		return nil
	})
	return n, err
}

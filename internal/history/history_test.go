package history_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hickagpt/agenda/internal/event"
	"github.com/hickagpt/agenda/internal/history"
)

func openJournal(t *testing.T) *history.Journal {
	t.Helper()
	j, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func record(id, name string, at time.Time) event.Record {
	return event.Record{
		ID:   id,
		Name: name,
		At:   at.UnixMilli(),
	}
}

func TestAppendAndGet(t *testing.T) {
	j := openJournal(t)
	now := time.Now()

	rec := record("01ARZ3NDEKTSV4RRFFQ69G5FAA", "backup", now)
	if err := j.Append(rec, now); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	got, err := j.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Event.ID != rec.ID || got.Event.Name != "backup" {
		t.Errorf("Get returned wrong entry: %+v", got.Event)
	}
	if got.ExecutedAt != now.UnixMilli() {
		t.Errorf("ExecutedAt = %d, want %d", got.ExecutedAt, now.UnixMilli())
	}
}

func TestGet_Unknown_ReturnsErrNotFound(t *testing.T) {
	j := openJournal(t)

	_, err := j.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if !errors.Is(err, history.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestRecent_OrdersByExecutionDesc(t *testing.T) {
	j := openJournal(t)
	base := time.Now()

	for i, id := range []string{
		"01ARZ3NDEKTSV4RRFFQ69G5FA1",
		"01ARZ3NDEKTSV4RRFFQ69G5FA2",
		"01ARZ3NDEKTSV4RRFFQ69G5FA3",
	} {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := j.Append(record(id, "job", at), at); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ExecutedAt > entries[i-1].ExecutedAt {
			t.Errorf("entries not in descending execution order at index %d", i)
		}
	}
	if entries[0].Event.ID != "01ARZ3NDEKTSV4RRFFQ69G5FA3" {
		t.Errorf("most recent entry = %s, want FA3", entries[0].Event.ID)
	}
}

func TestRecent_CapsAtN(t *testing.T) {
	j := openJournal(t)
	base := time.Now()

	for i := 0; i < 5; i++ {
		id := string(rune('A'+i)) + "1ARZ3NDEKTSV4RRFFQ69G5FAV"
		at := base.Add(time.Duration(i) * time.Second)
		if err := j.Append(record(id, "job", at), at); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	entries, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
}

func TestLen(t *testing.T) {
	j := openJournal(t)
	now := time.Now()

	if n, _ := j.Len(); n != 0 {
		t.Errorf("empty journal Len = %d, want 0", n)
	}

	_ = j.Append(record("01ARZ3NDEKTSV4RRFFQ69G5FA1", "a", now), now)
	_ = j.Append(record("01ARZ3NDEKTSV4RRFFQ69G5FA2", "b", now), now)

	n, err := j.Len()
	if err != nil {
		t.Fatalf("Len() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
}

func TestReopen_PreservesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	now := time.Now()

	j, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := j.Append(record("01ARZ3NDEKTSV4RRFFQ69G5FAV", "persisted", now), now); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	j2, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer j2.Close()

	got, err := j2.Get("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if got.Event.Name != "persisted" {
		t.Errorf("entry lost across reopen: %+v", got)
	}
}

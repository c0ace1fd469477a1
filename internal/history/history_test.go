package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewStore(dir)
	s.delay = 10 * time.Millisecond
	return s, filepath.Join(dir, "history.json")
}

func readSnapshot(t *testing.T, path string) []Item {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	return items
}

func TestAppendNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)

	s.Append("first")
	s.Append("second")
	s.Append("third")

	items := s.Recent(0)
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	if items[0].Text != "third" || items[2].Text != "first" {
		t.Errorf("order wrong: got %q .. %q", items[0].Text, items[2].Text)
	}
	if items[0].Time == 0 {
		t.Error("Time should be set")
	}
}

func TestRetentionBound(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < MaxItems+10; i++ {
		s.Append(fmt.Sprintf("entry %d", i))
	}

	if got := s.Len(); got != MaxItems {
		t.Fatalf("Len() = %d, want %d", got, MaxItems)
	}
	// The newest entry survives, the oldest ones are dropped.
	if got := s.Recent(1)[0].Text; got != fmt.Sprintf("entry %d", MaxItems+9) {
		t.Errorf("newest = %q", got)
	}
}

func TestRecentLimit(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 30; i++ {
		s.Append(fmt.Sprintf("entry %d", i))
	}
	if got := len(s.Recent(ConnectItems)); got != ConnectItems {
		t.Errorf("Recent(%d) returned %d items", ConnectItems, got)
	}
	if got := len(s.Recent(100)); got != 30 {
		t.Errorf("Recent(100) returned %d items, want 30", got)
	}
}

func TestDebouncedPersist(t *testing.T) {
	s, path := newTestStore(t)

	s.Append("one")
	s.Append("two")
	s.Append("three")

	// Inside the debounce window nothing may have been written yet for the
	// whole burst; after it, exactly the final snapshot must be on disk.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never written")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give the write a moment to complete before reading.
	time.Sleep(20 * time.Millisecond)

	items := readSnapshot(t, path)
	if len(items) != 3 {
		t.Fatalf("persisted %d items, want 3", len(items))
	}
	if items[0].Text != "three" {
		t.Errorf("persisted newest = %q, want three", items[0].Text)
	}
}

func TestFlushWritesImmediately(t *testing.T) {
	s, path := newTestStore(t)
	s.delay = time.Hour // debounce would never fire in this test

	s.Append("pending")
	s.Flush()

	items := readSnapshot(t, path)
	if len(items) != 1 || items[0].Text != "pending" {
		t.Fatalf("flush snapshot = %+v", items)
	}
}

func TestClearPersistsImmediately(t *testing.T) {
	s, path := newTestStore(t)
	s.delay = time.Hour

	s.Append("doomed")
	s.Clear()

	if got := s.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d", got)
	}
	items := readSnapshot(t, path)
	if len(items) != 0 {
		t.Fatalf("persisted %d items after Clear, want 0", len(items))
	}
}

func TestLazyLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	seed := []Item{
		{Text: "newest", Time: 2000},
		{Text: "oldest", Time: 1000},
	}
	data, _ := json.Marshal(seed)
	if err := os.WriteFile(filepath.Join(dir, "history.json"), data, 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dir)
	items := s.Recent(0)
	if len(items) != 2 || items[0].Text != "newest" {
		t.Fatalf("loaded %+v", items)
	}

	// Appends go in front of loaded entries.
	s.Append("fresh")
	if got := s.Recent(1)[0].Text; got != "fresh" {
		t.Errorf("newest after append = %q", got)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("{ not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dir)
	if got := s.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0 for corrupt file", got)
	}
}

// Package history provides the append-only bounded log of delivered text.
//
// The store keeps the newest entries first, retains at most 50 items, and
// persists to a pretty JSON file with a 500ms debounce: bursts of appends
// coalesce into a single write of the latest snapshot. This trades
// durability of the most recent burst for write amplification avoidance.
package history

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxItems is the retention bound for the in-memory and persisted log.
const MaxItems = 50

// ConnectItems is how many entries are pushed to a freshly connected client.
const ConnectItems = 20

// InitialItems is how many entries the mobile UI renders on initial load.
const InitialItems = 10

// persistDelay is the debounce window for persistence.
const persistDelay = 500 * time.Millisecond

// Item is a single delivered-text record.
type Item struct {
	// Text is the delivered text.
	Text string `json:"text"`

	// Time is the delivery timestamp in Unix milliseconds.
	Time int64 `json:"time"`
}

// Store is the bounded history log.
// All methods are safe for concurrent use.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	items  []Item

	// timer is the pending debounced persist. At most one timer exists at
	// a time; each Append resets it.
	timer *time.Timer

	// delay is the debounce window. Overridable for tests.
	delay time.Duration

	// timeNow returns the current time. Overridable for tests.
	timeNow func() time.Time
}

// NewStore creates a store backed by history.json under dir.
func NewStore(dir string) *Store {
	return &Store{
		path:    filepath.Join(dir, "history.json"),
		delay:   persistDelay,
		timeNow: time.Now,
	}
}

// Append prepends a timestamped entry, truncates to the retention bound,
// and schedules a debounced persist.
func (s *Store) Append(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()

	item := Item{Text: text, Time: s.timeNow().UnixMilli()}
	s.items = append([]Item{item}, s.items...)
	if len(s.items) > MaxItems {
		s.items = s.items[:MaxItems]
	}

	s.schedulePersistLocked()
}

// Recent returns up to n entries, newest first.
// n <= 0 returns all retained entries.
func (s *Store) Recent(n int) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked()

	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	out := make([]Item, n)
	copy(out, s.items[:n])
	return out
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return len(s.items)
}

// Clear empties both the in-memory cache and the persisted snapshot.
// Unlike Append, the write happens immediately: a clear is an explicit user
// action, not part of a burst.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loaded = true
	s.items = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.persistLocked()
}

// Flush writes any pending snapshot immediately.
// Called on shutdown so the debounce window doesn't drop the final burst.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
		s.persistLocked()
	}
}

// loadLocked populates the cache from disk on first access.
// Read failures leave the store empty; in-memory state is authoritative
// for the rest of the process lifetime.
func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("history: failed to read %s: %v", s.path, err)
		}
		return
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("history: failed to parse %s: %v", s.path, err)
		return
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	s.items = items
}

// schedulePersistLocked (re)arms the single debounce timer.
func (s *Store) schedulePersistLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.timer = nil
		s.persistLocked()
	})
}

// persistLocked writes the current snapshot as pretty JSON.
// Failures are logged, never escalated; the next debounce cycle is the
// only retry.
func (s *Store) persistLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		log.Printf("history: failed to create directory for %s: %v", s.path, err)
		return
	}

	items := s.items
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		log.Printf("history: failed to marshal snapshot: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		log.Printf("history: failed to write %s: %v", s.path, err)
	}
}

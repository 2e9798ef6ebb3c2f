// Package cache is a durable, time-bounded store of fetched reading series,
// keyed by request parameters. The whole entry map is serialized to a single
// JSON file after every mutation; a missing or unreadable file is treated as
// an empty cache, never a fatal error.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"energyforecast/pkg/models"
)

// DefaultTTL is how long an entry stays valid after being set.
const DefaultTTL = 3 * time.Hour

// Entry is one cached series plus the instant it was stored.
type Entry struct {
	Data      []models.Reading `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// EntryStatus describes one entry for inspection output.
type EntryStatus struct {
	Key       string
	Age       time.Duration
	Readings  int
	SizeBytes int
}

// Store owns the cached entries. Callers receive the stored slices and must
// not mutate them.
type Store struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	entries map[string]Entry
	now     func() time.Time
	logger  *log.Logger
}

// Open loads the cache file at path, starting empty if it is absent or
// corrupt.
func Open(path string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		path:    path,
		ttl:     DefaultTTL,
		entries: make(map[string]Entry),
		now:     time.Now,
		logger:  logger.With("component", "cache"),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache file unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupt storage is overwritten on the next Set.
		s.logger.Warn("cache file corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	s.entries = entries
}

// Get returns the cached series for key, or ok=false if the key is absent or
// expired. An expired entry found here is deleted as a side effect.
func (s *Store) Get(key string) ([]models.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(entry.Timestamp) > s.ttl {
		delete(s.entries, key)
		s.persistLocked()
		s.logger.Debug("cache entry expired", "key", key)
		return nil, false
	}
	return entry.Data, true
}

// Set upserts an entry with the current timestamp and persists the map.
func (s *Store) Set(key string, data []models.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{Data: data, Timestamp: s.now()}
	s.persistLocked()
}

// Remove deletes one entry and persists the map.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	s.persistLocked()
}

// Clear drops every entry and the backing file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

// Keys lists every cached key. Order is unspecified.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// PruneOldest keeps only the keep most recent entries whose key starts with
// prefix, deleting the rest. It returns the number of entries removed.
func (s *Store) PruneOldest(prefix string, keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []string
	for key := range s.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			matched = append(matched, key)
		}
	}
	if len(matched) <= keep {
		return 0
	}

	// Newest first, evict the tail.
	sort.Slice(matched, func(i, j int) bool {
		return s.entries[matched[i]].Timestamp.After(s.entries[matched[j]].Timestamp)
	})
	removed := 0
	for _, key := range matched[keep:] {
		delete(s.entries, key)
		removed++
	}
	s.persistLocked()
	s.logger.Debug("pruned cache entries", "prefix", prefix, "removed", removed)
	return removed
}

// Status summarizes every entry, newest first, for the cache status command.
func (s *Store) Status() []EntryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	statuses := make([]EntryStatus, 0, len(s.entries))
	for key, entry := range s.entries {
		size := 0
		if data, err := json.Marshal(entry.Data); err == nil {
			size = len(data)
		}
		statuses = append(statuses, EntryStatus{
			Key:       key,
			Age:       now.Sub(entry.Timestamp),
			Readings:  len(entry.Data),
			SizeBytes: size,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Age < statuses[j].Age })
	return statuses
}

// persistLocked writes the full entry map to the cache file. Write failures
// are logged and the in-memory cache keeps working; the next successful
// persist overwrites whatever is on disk.
func (s *Store) persistLocked() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		s.logger.Error("marshaling cache", "error", err)
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.logger.Error("creating cache directory", "path", dir, "error", err)
			return
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		s.logger.Error("writing cache file", "path", s.path, "error", err)
	}
}

package dictionary

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nightowl-app/capture-service/internal/lookup"
)

// Store holds word entries in memory and mirrors them to a JSON file.
// Entries are kept newest first. Every mutation rewrites the file through a
// temp-and-rename so a crash never leaves a torn dictionary behind.
type Store struct {
	path    string
	entries []lookup.WordEntry
	logger  *slog.Logger

	mu sync.RWMutex
}

// Open loads the store from path, creating an empty store if the file does
// not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read dictionary file %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("failed to parse dictionary file %s: %w", path, err)
		}
	}

	logger.Info("Dictionary loaded",
		slog.String("path", path),
		slog.Int("entries", len(s.entries)),
	)

	return s, nil
}

// Add prepends an entry and saves the store.
func (s *Store) Add(entry lookup.WordEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]lookup.WordEntry{entry}, s.entries...)
	return s.save()
}

// List returns a copy of all entries, newest first.
func (s *Store) List() []lookup.WordEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]lookup.WordEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Delete removes the entry with the given ID. It reports whether an entry
// was removed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.entries {
		if entry.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true, s.save()
		}
	}
	return false, nil
}

// Clear removes all entries and saves the empty store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return s.save()
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// save writes the entries to disk. Caller must hold the write lock.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dictionary: %w", err)
	}
	if s.entries == nil {
		data = []byte("[]")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".dictionary-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp dictionary file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write dictionary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close dictionary file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace dictionary file: %w", err)
	}

	return nil
}

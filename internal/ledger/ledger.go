// Copyright (C) 2025 Cartoflow, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package ledger is the durable per-item state store for a batch run. The
// ledger file is a JSON mapping from destination asset path to entry, kept
// human-inspectable and rewritten atomically on every transition so a killed
// process loses at most the in-flight item.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFilename is the ledger file colocated with the source directory.
const DefaultFilename = ".terraload-state.json"

// State is the lifecycle state of one destination path.
type State string

const (
	StatePending   State = "pending"
	StateSubmitted State = "submitted"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Terminal reports whether the state is never re-processed in resume mode.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateSkipped
}

// Entry is the persisted record for a destination path.
type Entry struct {
	DestinationPath string    `json:"destinationPath"`
	State           State     `json:"state"`
	RemoteJobID     string    `json:"remoteJobId,omitempty"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"lastError,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IOError wraps a storage failure. It is fatal to the run: the orchestrator
// must not keep reporting progress it could not persist.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store serializes all physical writes behind a single lock. Workers
// transition disjoint keys, but the file is always rewritten as a whole.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
}

// Open loads the ledger at path, returning an empty store if the file does
// not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, &IOError{Op: "decode", Path: path, Err: err}
	}
	for dest, e := range s.entries {
		e.DestinationPath = dest
	}
	return s, nil
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the entry for a destination path.
func (s *Store) Get(destinationPath string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[destinationPath]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns a snapshot of all entries.
func (s *Store) Entries() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.entries))
	for dest, e := range s.entries {
		out[dest] = *e
	}
	return out
}

// Counts tallies entries by state.
func (s *Store) Counts() map[State]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[State]int)
	for _, e := range s.entries {
		counts[e.State]++
	}
	return counts
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Option mutates the entry being transitioned.
type Option func(*Entry)

// WithJobID records the remote job identifier returned on submission.
func WithJobID(jobID string) Option {
	return func(e *Entry) { e.RemoteJobID = jobID }
}

// WithError records the last observed failure.
func WithError(msg string) Option {
	return func(e *Entry) { e.LastError = msg }
}

// IncrementAttempts bumps the submission attempt count.
func IncrementAttempts() Option {
	return func(e *Entry) { e.Attempts++ }
}

// Transition upserts the entry for a destination path and flushes the whole
// ledger to disk before returning. The write is temp-then-rename so a
// concurrent reader (or a crash) never observes a partially-written file.
func (s *Store) Transition(destinationPath string, newState State, opts ...Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[destinationPath]
	if !ok {
		e = &Entry{DestinationPath: destinationPath}
		s.entries[destinationPath] = e
	}
	e.State = newState
	e.UpdatedAt = s.now().UTC()
	for _, opt := range opts {
		opt(e)
	}
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".terraload-state-*.tmp")
	if err != nil {
		return &IOError{Op: "create temp", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "sync", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "replace", Path: s.path, Err: err}
	}
	return nil
}

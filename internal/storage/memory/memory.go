// Package memory is the in-memory snapshot store: the default development
// backend and the port tests inject instead of real storage.
package memory

import (
	"context"
	"sync"

	"glassbooks/internal/core"
)

type Store struct {
	mu    sync.Mutex
	snap  core.Snapshot
	ok    bool
	saves int
}

func New() *Store {
	return &Store{}
}

// Seed pre-loads persisted state, as if a previous session had saved it.
func Seed(snap core.Snapshot) *Store {
	return &Store{snap: snap, ok: true}
}

func (s *Store) Load(_ context.Context) (core.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.ok, nil
}

func (s *Store) Save(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.ok = true
	s.saves++
	return nil
}

// LastSaved returns the most recently saved snapshot.
func (s *Store) LastSaved() (core.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.ok
}

// Saves reports how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

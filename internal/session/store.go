// Package session persists intake session state between turns.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wolfman30/symptom-intake/internal/triage"
)

// ErrNotFound is returned when no state exists for a session ID.
var ErrNotFound = errors.New("session: not found")

// Store loads and saves whole session states.
type Store interface {
	Load(ctx context.Context, sessionID string) (triage.State, error)
	Save(ctx context.Context, state triage.State) error
}

func encode(state triage.State) ([]byte, error) {
	if strings.TrimSpace(state.ID) == "" {
		return nil, errors.New("session: state id required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("session: marshal state: %w", err)
	}
	return data, nil
}

func decode(data []byte) (triage.State, error) {
	var state triage.State
	if err := json.Unmarshal(data, &state); err != nil {
		return triage.State{}, fmt.Errorf("session: decode state: %w", err)
	}
	return state, nil
}

// MemoryStore keeps encoded states in process memory. Each load decodes a
// fresh copy so callers never share slices with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (triage.State, error) {
	s.mu.RLock()
	data, ok := s.states[sessionID]
	s.mu.RUnlock()
	if !ok {
		return triage.State{}, ErrNotFound
	}
	return decode(data)
}

func (s *MemoryStore) Save(ctx context.Context, state triage.State) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.states[state.ID] = data
	s.mu.Unlock()
	return nil
}

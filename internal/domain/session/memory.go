package session

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
)

// MemoryStore keeps the record in process. It does not survive restarts.
type MemoryStore struct {
	mu      sync.Mutex
	state   types.SessionState
	saves   int
	loadErr error
	saveErr error
}

// NewMemoryStore creates an empty store in the Idle state
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the record
func (s *MemoryStore) Load(ctx context.Context) (types.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return types.SessionState{}, s.loadErr
	}
	return clone(s.state), nil
}

// Save replaces the record
func (s *MemoryStore) Save(ctx context.Context, state types.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = clone(state)
	return nil
}

// Saves returns how many times Save was called
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// FailLoad makes Load return err until cleared with nil
func (s *MemoryStore) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailSave makes Save return err until cleared with nil
func (s *MemoryStore) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

func clone(state types.SessionState) types.SessionState {
	if state.PreviousHome != nil {
		home := *state.PreviousHome
		state.PreviousHome = &home
	}
	return state
}

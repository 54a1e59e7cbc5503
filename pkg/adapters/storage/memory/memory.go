package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ansor-ai/ansor/pkg/ports"
)

// InMemoryRunStore implements RunStore with an in-process map.
type InMemoryRunStore struct {
	runs map[string]map[string]*ports.TurnRun // session -> turn -> run
	mu   sync.RWMutex
}

// NewInMemoryRunStore creates a new in-memory run store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs: make(map[string]map[string]*ports.TurnRun),
	}
}

// SaveRun stores a turn run, replacing any previous run of the same turn.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, run *ports.TurnRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.runs[run.SessionID]
	if !ok {
		session = make(map[string]*ports.TurnRun)
		s.runs[run.SessionID] = session
	}
	copied := *run
	session[run.TurnID] = &copied
	return nil
}

// GetRun retrieves one turn run.
func (s *InMemoryRunStore) GetRun(ctx context.Context, sessionID, turnID string) (*ports.TurnRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[sessionID][turnID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s/%s", sessionID, turnID)
	}
	return run, nil
}

// ListRuns returns a session's runs ordered by creation time.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, sessionID string) ([]*ports.TurnRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session := s.runs[sessionID]
	runs := make([]*ports.TurnRun, 0, len(session))
	for _, run := range session {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

// DeleteSession removes every run of a session.
func (s *InMemoryRunStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, sessionID)
	return nil
}

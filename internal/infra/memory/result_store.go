package memory

import (
	"context"
	"sync"

	"quizroom-service/internal/domain"
)

// ResultStore is an in-memory, write-once implementation of app.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]domain.RoomResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.RoomResult)}
}

func (s *ResultStore) RecordRoomResult(_ context.Context, result domain.RoomResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.RoomID]; ok {
		return domain.ErrResultExists
	}
	s.results[result.RoomID] = result
	return nil
}

// Get returns a recorded result, if any.
func (s *ResultStore) Get(roomID string) (domain.RoomResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[roomID]
	return result, ok
}

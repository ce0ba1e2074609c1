package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/guyghost/cryptosim/internal/backtesting"
)

// MemoryStore is an in-memory ResultStore. Results are kept as JSON so callers
// can never mutate a stored result.
type MemoryStore struct {
	mu       sync.RWMutex
	order    []string
	payloads map[string][]byte
	index    map[string]Summary
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payloads: make(map[string][]byte),
		index:    make(map[string]Summary),
	}
}

// Save implements ResultStore.
func (s *MemoryStore) Save(_ context.Context, res *backtesting.Result) error {
	if err := checkResult(res); err != nil {
		return err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", res.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payloads[res.RunID]; exists {
		return ErrDuplicateKey
	}
	s.payloads[res.RunID] = payload
	s.index[res.RunID] = summarize(res)
	s.order = append(s.order, res.RunID)
	return nil
}

// Get implements ResultStore.
func (s *MemoryStore) Get(_ context.Context, runID string) (*backtesting.Result, error) {
	s.mu.RLock()
	payload, exists := s.payloads[runID]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	var res backtesting.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", runID, err)
	}
	return &res, nil
}

// List implements ResultStore.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	return s.filter(func(Summary) bool { return true }), nil
}

// FindByInputHash implements ResultStore.
func (s *MemoryStore) FindByInputHash(_ context.Context, inputHash string) ([]Summary, error) {
	return s.filter(func(sum Summary) bool { return sum.InputHash == inputHash }), nil
}

func (s *MemoryStore) filter(keep func(Summary) bool) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		if sum := s.index[id]; keep(sum) {
			result = append(result, sum)
		}
	}
	return result
}

// Close implements ResultStore.
func (s *MemoryStore) Close() error {
	return nil
}

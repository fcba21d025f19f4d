package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/wricardo/connectn/game/session"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	results  map[string]session.Result
	counters map[string]Counters
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:  make(map[string]session.Result),
		counters: make(map[string]Counters),
	}
}

func (m *MemoryStore) PersistResult(ctx context.Context, result session.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ID] = result
	return nil
}

func (m *MemoryStore) GetResults(ctx context.Context, ids []string) ([]session.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]session.Result, 0, len(ids))
	for _, id := range ids {
		result, ok := m.results[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
		}
		results = append(results, result)
	}
	return results, nil
}

func (m *MemoryStore) SearchResults(ctx context.Context, params SearchParams) ([]session.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	all := lo.Values(m.results)
	m.mu.RUnlock()
	return filterResults(all, params), nil
}

func (m *MemoryStore) FetchCounters(ctx context.Context, participantID string) (Counters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.counters[participantID]
	c.GameIDs = slices.Clone(c.GameIDs)
	return c, nil
}

func (m *MemoryStore) UpdateCounters(ctx context.Context, participantID string, delta Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[participantID]
	if c.Apply(delta) {
		m.counters[participantID] = c
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

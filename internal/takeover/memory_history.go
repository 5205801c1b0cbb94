package takeover

import (
	"context"
	"sync"
)

// MemoryHistory keeps per-user attempt rings in process memory. It is the
// default backend; multi-instance deployments use RedisHistory instead.
type MemoryHistory struct {
	mu       sync.RWMutex
	attempts map[string][]Attempt
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{attempts: make(map[string][]Attempt)}
}

func (m *MemoryHistory) List(_ context.Context, userID string) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Attempt(nil), m.attempts[userID]...), nil
}

func (m *MemoryHistory) Append(_ context.Context, attempt Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.attempts[attempt.UserID], attempt)
	if len(list) > HistoryCap {
		list = list[len(list)-HistoryCap:]
	}
	m.attempts[attempt.UserID] = list
	return nil
}

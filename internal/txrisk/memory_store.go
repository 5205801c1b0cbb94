package txrisk

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments []*Assessment
}

// NewMemoryStore creates an empty in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, a *Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.assessments = append(m.assessments, &cp)
	return nil
}

func (m *MemoryStore) ListForUser(_ context.Context, userID string, limit int) ([]*Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Assessment
	// Newest first.
	for i := len(m.assessments) - 1; i >= 0; i-- {
		if m.assessments[i].UserID != userID {
			continue
		}
		cp := *m.assessments[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len reports how many assessments have been saved.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assessments)
}

package payments

import (
	"context"
	"sync"
)

// MemoryStore keeps cached requests in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]PaymentRequest
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]PaymentRequest)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (*PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[userID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemoryStore) Save(ctx context.Context, userID string, r PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = r
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
	return nil
}

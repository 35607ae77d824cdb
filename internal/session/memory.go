package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Used by tests and by one-shot refresh
// runs where sessions never need to outlive the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	sess      *Session
	expiresAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		items: map[string]memoryItem{},
		now:   time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, s *Session, ttl time.Duration) error {
	cp := s.Clone()
	m.mu.Lock()
	m.items[s.ID] = memoryItem{sess: cp, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	item, ok := m.items[id]
	m.mu.RUnlock()
	if !ok || m.now().After(item.expiresAt) {
		return nil, ErrNotFound
	}
	return item.sess.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process SubscriptionStore and ResponseStore. Contents
// are lost on restart; it backs tests and the "memory" store driver.
type MemoryStore struct {
	mu        sync.RWMutex
	subs      map[string]Subscription // endpoint → record
	responses []ActionResponse
	nextID    int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]Subscription)}
}

// Upsert stores sub, replacing any record with the same endpoint.
func (m *MemoryStore) Upsert(_ context.Context, sub *Subscription) error {
	cp := *sub
	cp.Payload = slices.Clone(sub.Payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Endpoint] = cp
	return nil
}

// DeleteByEndpoint removes the record for endpoint, if any.
func (m *MemoryStore) DeleteByEndpoint(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, endpoint)
	return nil
}

// List returns all subscriptions ordered by creation time, then id.
func (m *MemoryStore) List(_ context.Context) ([]Subscription, error) {
	m.mu.RLock()
	subs := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(subs, func(a, b Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return subs, nil
}

// Get returns the subscription with the given id, or nil if not found.
func (m *MemoryStore) Get(_ context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

// LogResponse appends an action response.
func (m *MemoryStore) LogResponse(_ context.Context, resp ActionResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	resp.ID = m.nextID
	m.responses = append(m.responses, resp)
	return nil
}

// ListResponses returns the most recent responses first, up to limit.
func (m *MemoryStore) ListResponses(_ context.Context, limit int) ([]ActionResponse, error) {
	if limit <= 0 {
		limit = defaultResponseLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ActionResponse, 0, min(limit, len(m.responses)))
	for i := len(m.responses) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.responses[i])
	}
	return out, nil
}

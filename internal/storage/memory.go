package storage

import (
	"context"
	"sync"
)

var _ ClientRegistry = (*MemoryRegistry)(nil)

// MemoryRegistry keeps registered clients in process memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{clients: make(map[string]*Client)}
}

func (r *MemoryRegistry) GetClient(_ context.Context, clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (r *MemoryRegistry) PutClient(_ context.Context, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID] = client
	return nil
}

func (r *MemoryRegistry) Close() {}

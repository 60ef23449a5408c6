package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// clientPrefix namespaces registered-client keys in Redis.
const clientPrefix = "client:"

// clientCacheTTL is how long a client record may be served from the
// rueidis client-side cache. Clients change rarely.
const clientCacheTTL = 60 * time.Second

var _ ClientRegistry = (*RedisRegistry)(nil)

// RedisRegistry persists registered clients in Redis so they survive
// gateway restarts.
type RedisRegistry struct {
	client rueidis.Client
}

func NewRedisRegistry(addr string) (*RedisRegistry, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return &RedisRegistry{client: client}, nil
}

// NewRedisRegistryFromClient wraps an existing rueidis client.
func NewRedisRegistryFromClient(client rueidis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) GetClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}

	cmd := r.client.B().Get().Key(clientPrefix + clientID).Cache()
	result, err := r.client.DoCache(ctx, cmd, clientCacheTTL).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client from redis: %w", err)
	}

	var client Client
	if err := json.Unmarshal([]byte(result), &client); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return &client, nil
}

func (r *RedisRegistry) PutClient(ctx context.Context, client *Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	cmd := r.client.B().Set().Key(clientPrefix + client.ID).Value(string(data)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to store client in redis: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Close() {
	r.client.Close()
}

// Package storage persists OAuth session state and registered clients.
// Session artifacts (codes, tokens) live in fosite's in-memory store;
// the client registry is pluggable so dynamically registered clients can
// survive restarts when backed by Redis.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ory/fosite"
	"github.com/ory/fosite/storage"

	"github.com/alianzacap/jppr-front/internal/config"
	"github.com/alianzacap/jppr-front/internal/log"
)

// ErrClientNotFound marks a lookup for a client ID that was never
// registered.
var ErrClientNotFound = errors.New("client not found")

// ClientRegistry stores registered OAuth clients.
type ClientRegistry interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	PutClient(ctx context.Context, client *Client) error
	Close()
}

var _ fosite.Storage = (*Store)(nil)

// Store is the fosite storage backend. Authorization codes and tokens
// are kept in memory; client lookups are delegated to the registry.
// Pending authorize requests are parked here between the redirect to the
// identity provider and its callback.
type Store struct {
	*storage.MemoryStore
	clients    ClientRegistry
	stateCache sync.Map // map[string]fosite.AuthorizeRequester
}

// New builds a Store with the registry selected by configuration.
func New(cfg *config.Config) (*Store, error) {
	var registry ClientRegistry
	switch cfg.Storage {
	case config.StorageKindRedis:
		var err error
		registry, err = NewRedisRegistry(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("create redis client registry: %w", err)
		}
		log.Logf("Using redis client registry at %s", cfg.RedisAddr)
	default:
		registry = NewMemoryRegistry()
	}

	return &Store{
		MemoryStore: storage.NewMemoryStore(),
		clients:     registry,
	}, nil
}

// NewWithRegistry builds a Store around an explicit registry.
func NewWithRegistry(registry ClientRegistry) *Store {
	return &Store{
		MemoryStore: storage.NewMemoryStore(),
		clients:     registry,
	}
}

// GetClient implements fosite.Storage. Missing clients map to
// fosite.ErrNotFound so fosite reports invalid_client to the caller.
func (s *Store) GetClient(ctx context.Context, id string) (fosite.Client, error) {
	client, err := s.clients.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, fosite.ErrNotFound
		}
		return nil, err
	}
	return client.ToFositeClient(), nil
}

// StoreAuthorizeRequest parks a pending authorize request keyed by the
// opaque state sent to the identity provider.
func (s *Store) StoreAuthorizeRequest(key string, req fosite.AuthorizeRequester) {
	s.stateCache.Store(key, req)
}

// ConsumeAuthorizeRequest retrieves and removes a pending authorize
// request. One-time use: a second consume with the same key misses.
func (s *Store) ConsumeAuthorizeRequest(key string) (fosite.AuthorizeRequester, bool) {
	if req, ok := s.stateCache.LoadAndDelete(key); ok {
		return req.(fosite.AuthorizeRequester), true
	}
	return nil, false
}

// RegisterPublicClient records a public client created through dynamic
// registration.
func (s *Store) RegisterPublicClient(ctx context.Context, clientID string, redirectURIs, scopes []string) (*Client, error) {
	return s.register(ctx, &Client{
		ID:           clientID,
		RedirectURIs: redirectURIs,
		Scopes:       scopes,
		Public:       true,
	})
}

// RegisterConfidentialClient records a confidential client with a
// bcrypt-hashed secret.
func (s *Store) RegisterConfidentialClient(ctx context.Context, clientID string, hashedSecret []byte, redirectURIs, scopes []string) (*Client, error) {
	return s.register(ctx, &Client{
		ID:           clientID,
		Secret:       hashedSecret,
		RedirectURIs: redirectURIs,
		Scopes:       scopes,
	})
}

func (s *Store) register(ctx context.Context, client *Client) (*Client, error) {
	client.GrantTypes = []string{"authorization_code", "refresh_token"}
	client.ResponseTypes = []string{"code"}
	client.CreatedAt = time.Now().Unix()

	if err := s.clients.PutClient(ctx, client); err != nil {
		return nil, fmt.Errorf("store client %s: %w", client.ID, err)
	}
	log.Logf("Registered client %s, redirect_uris: %v, public: %v", client.ID, client.RedirectURIs, client.Public)
	return client, nil
}

// Close releases registry resources.
func (s *Store) Close() {
	s.clients.Close()
}

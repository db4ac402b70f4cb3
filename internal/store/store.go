// Package store provides session storage backends for HarvestFlow.
//
// Sessions are keyed by an opaque identifier and hold one serialized
// ConversationState each. Backends: in-memory (with optional TTL eviction),
// SQLite, PostgreSQL and Redis. The store provides whatever write ordering
// exists per session; the engine assumes turns for one session arrive
// sequentially.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/harvestflow/harvestflow/internal/models"
)

// Store is the session store capability consumed by transport adapters.
type Store interface {
	// GetSession returns the stored state, or nil when the session does not
	// exist.
	GetSession(ctx context.Context, id string) (*models.ConversationState, error)
	// SaveSession creates or replaces the stored state.
	SaveSession(ctx context.Context, state *models.ConversationState) error
	// DeleteSession removes a session. Deleting a missing session is not an
	// error.
	DeleteSession(ctx context.Context, id string) error
	// ListSessionIDs returns the identifiers of all stored sessions.
	ListSessionIDs(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store construction.
type Opts struct {
	// DSN is the SQLite file path or Postgres connection string.
	DSN string
	// RedisAddr is the host:port of a Redis server.
	RedisAddr string
	// RedisPassword is the optional Redis auth password.
	RedisPassword string
	// TTL is how long idle sessions are kept. Zero means forever.
	TTL time.Duration
}

// Option configures Opts.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisAddr sets the Redis server address.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithRedisPassword sets the Redis auth password.
func WithRedisPassword(pw string) Option {
	return func(o *Opts) { o.RedisPassword = pw }
}

// WithTTL sets the session time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// marshalState serializes a session for storage.
func marshalState(state *models.ConversationState) ([]byte, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", state.ID, err)
	}
	return raw, nil
}

// unmarshalState deserializes a stored session.
func unmarshalState(raw []byte) (*models.ConversationState, error) {
	var state models.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &state, nil
}

// InMemoryStore keeps sessions in process memory. With a TTL it evicts idle
// sessions in the background; without one it holds them until deleted.
type InMemoryStore struct {
	cache *gocache.Cache
}

// NewInMemoryStore creates an in-memory session store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := gocache.NoExpiration
	cleanup := time.Duration(0)
	if cfg.TTL > 0 {
		ttl = cfg.TTL
		cleanup = cfg.TTL
	}
	return &InMemoryStore{cache: gocache.New(ttl, cleanup)}
}

// GetSession implements Store.
func (s *InMemoryStore) GetSession(ctx context.Context, id string) (*models.ConversationState, error) {
	raw, found := s.cache.Get(id)
	if !found {
		return nil, nil
	}
	return unmarshalState(raw.([]byte))
}

// SaveSession implements Store. The state is serialized on write so later
// mutations of the caller's copy never leak into the store.
func (s *InMemoryStore) SaveSession(ctx context.Context, state *models.ConversationState) error {
	raw, err := marshalState(state)
	if err != nil {
		return err
	}
	s.cache.Set(state.ID, raw, gocache.DefaultExpiration)
	return nil
}

// DeleteSession implements Store.
func (s *InMemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// ListSessionIDs implements Store.
func (s *InMemoryStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	items := s.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

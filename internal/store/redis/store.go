package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLinkTTL is the default TTL for cached link expansions (7 days)
const DefaultLinkTTL = 7 * 24 * time.Hour

// Store handles Redis operations for the enrichment cache
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new Redis store. A non-positive ttl uses DefaultLinkTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// Ping reports whether Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PutLink stores a link expansion in cache
func (s *Store) PutLink(ctx context.Context, link *domain.Link) error {
	if link == nil {
		return nil
	}
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}
	if err := s.client.Set(ctx, LinkKey(link.URL), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}
	return nil
}

// GetLink retrieves a cached link expansion. A miss returns nil, nil.
func (s *Store) GetLink(ctx context.Context, url string) (*domain.Link, error) {
	data, err := s.client.Get(ctx, LinkKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cached link: %w", err)
	}

	var link domain.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached link: %w", err)
	}
	if link.URL != url {
		return nil, nil // hash collision or foreign entry
	}
	return &link, nil
}

// InvalidateLink removes a cached link expansion
func (s *Store) InvalidateLink(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, LinkKey(url)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate link: %w", err)
	}
	return nil
}

// FlushLinks removes all cached link expansions
func (s *Store) FlushLinks(ctx context.Context) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, KeyPrefixLink+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete cache key: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to flush cache: %w", err)
	}
	return removed, nil
}

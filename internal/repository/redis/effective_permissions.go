package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/repository"
)

const defaultEffectivePermissionPrefix = "authz:effective"

// EffectivePermissionCache caches the encoded effective directive set per
// subject for low-latency authorization checks. Entries hold the canonical
// directive strings as a JSON array.
type EffectivePermissionCache struct {
	client *red.Client
	prefix string
}

// NewEffectivePermissionCache constructs the effective permission cache helper.
func NewEffectivePermissionCache(client *red.Client, keyPrefix string) *EffectivePermissionCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultEffectivePermissionPrefix
	}

	return &EffectivePermissionCache{client: client, prefix: prefix}
}

// Get fetches the cached encoded directives for the subject.
func (c *EffectivePermissionCache) Get(ctx context.Context, userID string) ([]string, error) {
	key := c.key(userID)
	if key == "" {
		return nil, fmt.Errorf("user id is required")
	}

	result, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get effective permissions: %w", err)
	}

	var encoded []string
	if err := json.Unmarshal([]byte(result), &encoded); err != nil {
		return nil, fmt.Errorf("parse cached effective permissions: %w", err)
	}

	return encoded, nil
}

// Set stores the encoded directives for the subject with TTL.
func (c *EffectivePermissionCache) Set(ctx context.Context, userID string, encoded []string, ttl time.Duration) error {
	key := c.key(userID)
	if key == "" {
		return fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if encoded == nil {
		encoded = []string{}
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshal effective permissions: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set effective permissions: %w", err)
	}

	return nil
}

// Delete removes the cached entry for the subject.
func (c *EffectivePermissionCache) Delete(ctx context.Context, userID string) error {
	key := c.key(userID)
	if key == "" {
		return fmt.Errorf("user id is required")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete effective permissions: %w", err)
	}

	return nil
}

func (c *EffectivePermissionCache) key(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.prefix, userID)
}

var _ port.EffectivePermissionCache = (*EffectivePermissionCache)(nil)

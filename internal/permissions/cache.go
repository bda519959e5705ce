package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ProfileCache keeps JSON copies of permission profiles in Redis so the
// request-path guards do not hit PostgreSQL on every check. Concurrent cache
// misses for the same user collapse into one repository load.
type ProfileCache struct {
	client *redis.Client
	repo   Repository
	ttl    time.Duration
	group  singleflight.Group
}

// NewProfileCache instantiates the cache helper. A nil client degrades to
// straight repository reads.
func NewProfileCache(client *redis.Client, repo Repository, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, repo: repo, ttl: ttl}
}

func profileKey(userID string) string {
	return fmt.Sprintf("perm:profile:%s", userID)
}

// Get returns the cached profile, loading and populating on a miss.
func (c *ProfileCache) Get(ctx context.Context, userID string) (*UserProfile, error) {
	if c.client == nil {
		return c.repo.Get(ctx, userID)
	}
	payload, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if err == nil {
		var profile UserProfile
		if err := json.Unmarshal(payload, &profile); err == nil {
			return &profile, nil
		}
		// Corrupt payload: fall through and reload.
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	value, err, _ := c.group.Do(userID, func() (any, error) {
		profile, err := c.repo.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(profile)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, profileKey(userID), raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*UserProfile), nil
}

// Invalidate drops the cached copy after a mutation.
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, profileKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

var _ Invalidator = (*ProfileCache)(nil)

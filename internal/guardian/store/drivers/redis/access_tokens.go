// Package redis provides an AccessTokens implementation backed by Redis,
// for deployments that want the token reuse cache shared across replicas
// rather than pinned to one node's SQLite file. Expiry is delegated to
// Redis key TTLs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/store"
)

// AccessTokenCache implements store.AccessTokens on top of a Redis client.
type AccessTokenCache struct {
	rdb    *redis.Client
	prefix string
}

func NewAccessTokenCache(rdb *redis.Client, prefix string) *AccessTokenCache {
	if prefix == "" {
		prefix = "guardian"
	}
	return &AccessTokenCache{rdb: rdb, prefix: prefix}
}

func (c *AccessTokenCache) pairKey(clientID, userID string) string {
	return fmt.Sprintf("%s:at:%s:%s", c.prefix, clientID, userID)
}

func (c *AccessTokenCache) jtiKey(tokenID string) string {
	return fmt.Sprintf("%s:jti:%s", c.prefix, tokenID)
}

// CreateAccessToken stores the record under the (client, user) pair key and
// indexes it by jti for revocation. Both keys expire with the token.
func (c *AccessTokenCache) CreateAccessToken(ctx context.Context, rec domain.AccessTokenRecord) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil // already dead on arrival, nothing worth caching
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ok, err := c.rdb.SetNX(ctx, c.jtiKey(rec.TokenID), c.pairKey(rec.ClientID, rec.UserID), ttl).Result()
	if err != nil {
		return mapRedisErr(err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}

	if err := c.rdb.Set(ctx, c.pairKey(rec.ClientID, rec.UserID), payload, ttl).Err(); err != nil {
		return mapRedisErr(err)
	}

	return nil
}

func (c *AccessTokenCache) FindActiveAccessToken(
	ctx context.Context,
	clientID, userID string,
) (domain.AccessTokenRecord, error) {
	raw, err := c.rdb.Get(ctx, c.pairKey(clientID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AccessTokenRecord{}, store.ErrNotFound
	}
	if err != nil {
		return domain.AccessTokenRecord{}, mapRedisErr(err)
	}

	var rec domain.AccessTokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.AccessTokenRecord{}, err
	}

	// TTL is coarse; re-check the exact boundary before handing it out.
	if !rec.Active(time.Now().UTC()) {
		return domain.AccessTokenRecord{}, store.ErrNotFound
	}

	return rec, nil
}

func (c *AccessTokenCache) RevokeAccessToken(ctx context.Context, tokenID string) error {
	pairKey, err := c.rdb.Get(ctx, c.jtiKey(tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil // already expired or never cached
	}
	if err != nil {
		return mapRedisErr(err)
	}

	// Only drop the pair entry when it still belongs to this jti; a newer
	// token for the same pair must survive the revocation of an old one.
	raw, err := c.rdb.Get(ctx, pairKey).Bytes()
	if err == nil {
		var rec domain.AccessTokenRecord
		if json.Unmarshal(raw, &rec) == nil && rec.TokenID == tokenID {
			if err := c.rdb.Del(ctx, pairKey).Err(); err != nil {
				return mapRedisErr(err)
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		return mapRedisErr(err)
	}

	if err := c.rdb.Del(ctx, c.jtiKey(tokenID)).Err(); err != nil {
		return mapRedisErr(err)
	}
	return nil
}

// DeleteExpiredAccessTokens is a no-op: Redis TTLs already reap dead keys.
func (c *AccessTokenCache) DeleteExpiredAccessTokens(ctx context.Context) error {
	return nil
}

func mapRedisErr(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/redis/go-redis/v9"
)

const cachePrefix = "jacs:pubkey:"

// CachedProvider caches public key lookups in redis in front of a slower
// provider (vault, DNS). Only public material is ever cached; SigningKey
// requests always go to the underlying provider.
type CachedProvider struct {
	inner interfaces.KeyProvider
	rdb   *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedProvider(inner interfaces.KeyProvider, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

// Resolve returns the cached public key when present, otherwise falls through
// to the inner provider and populates the cache. Cache failures degrade to
// the inner provider rather than failing resolution.
func (p *CachedProvider) Resolve(ctx context.Context, agentID interfaces.AgentID) (interfaces.PublicKey, interfaces.PublicKeyHash, error) {
	key := cachePrefix + agentID.String()

	cached, err := p.rdb.Get(ctx, key).Result()
	if err == nil {
		pub, decErr := base64.StdEncoding.DecodeString(cached)
		if decErr == nil {
			return pub, interfaces.HashPublicKey(pub), nil
		}
		p.log.Warn("Dropping malformed cached public key", slog.String("agent_id", agentID.String()))
		_ = p.rdb.Del(ctx, key).Err()
	} else if err != redis.Nil {
		p.log.Warn("Public key cache unavailable", slog.Any("err", err))
	}

	pub, keyHash, err := p.inner.Resolve(ctx, agentID)
	if err != nil {
		return nil, interfaces.PublicKeyHash{}, err
	}

	if setErr := p.rdb.Set(ctx, key, base64.StdEncoding.EncodeToString(pub), p.ttl).Err(); setErr != nil {
		p.log.Warn("Failed to cache public key", slog.Any("err", setErr))
	}

	return pub, keyHash, nil
}

// SigningKey delegates to the inner provider. Private keys are never cached.
func (p *CachedProvider) SigningKey(ctx context.Context, agentID interfaces.AgentID) (*interfaces.SigningKeyHandle, error) {
	return p.inner.SigningKey(ctx, agentID)
}

// Invalidate drops the cached public key for an agent, for use after key
// rotation.
func (p *CachedProvider) Invalidate(ctx context.Context, agentID interfaces.AgentID) error {
	if err := p.rdb.Del(ctx, cachePrefix+agentID.String()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached key for %s: %w", agentID, err)
	}
	return nil
}

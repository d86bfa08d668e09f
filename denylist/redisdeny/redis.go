// Package redisdeny provides a Redis-backed denylist so revocations are
// shared across horizontally scaled gateway replicas.
package redisdeny

import (
	"context"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/authgate-io/authgate/denylist"
)

// Config for the Redis-backed denylist. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all revocation markers. ENV: DENYLIST_KEY_PREFIX
	KeyPrefix string `env:"DENYLIST_KEY_PREFIX,default=authgate:denied:"`
}

type Denylist struct {
	client    *redis.Client
	keyPrefix string
}

func New(cfg Config) (*Denylist, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "authgate:denied:"
	}
	return &Denylist{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Denylist using envdecode to populate Config.
func NewFromEnv() (*Denylist, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (d *Denylist) Close() error { return d.client.Close() }

func (d *Denylist) key(tokenID string) string { return d.keyPrefix + tokenID }

func (d *Denylist) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	// Revocations must land even if the triggering request is being canceled.
	c := context.WithoutCancel(ctx)
	return d.client.Set(c, d.key(tokenID), "1", ttl).Err()
}

func (d *Denylist) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Interface compliance
var _ denylist.Denylist = (*Denylist)(nil)

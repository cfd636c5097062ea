// Package cache keeps a Redis read cache of pet status for dashboards and
// bots. It is fed by lifecycle events and is never the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
)

// DefaultTTL is how long a cached status lives without a fresh event.
const DefaultTTL = 15 * time.Minute

// ErrMiss is returned when nothing is cached under a key.
var ErrMiss = errors.New("cache: miss")

// RedisClient is the subset of Redis operations the cache needs.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
	HDel(ctx context.Context, key string, fields ...string) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
}

// PetCache provides fast access to pet status snapshots.
type PetCache struct {
	client     RedisClient
	expiration time.Duration
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewPetCache creates a new pet cache. A zero ttl uses DefaultTTL.
func NewPetCache(client RedisClient, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *PetCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PetCache{client: client, expiration: ttl, logger: log, metrics: m}
}

// PetState is the cached view of one pet.
type PetState struct {
	pet.Pet
	Emoji    string `json:"emoji"`
	LastSeq  uint64 `json:"last_seq"`
	LastSync int64  `json:"last_sync"` // Unix timestamp
}

// Notify caches the pet carried by a lifecycle event. Events without a pet
// are ignored. It satisfies events.Subscriber.
func (c *PetCache) Notify(ctx context.Context, e events.Event) error {
	if e.Pet == nil {
		return nil
	}
	state := PetState{Pet: *e.Pet, Emoji: e.Pet.Emoji(), LastSeq: e.Seq, LastSync: e.Timestamp.Unix()}
	if err := c.SetPetState(ctx, e.Tenant, state); err != nil {
		c.metrics.CacheWrites.WithLabelValues("error").Inc()
		c.logger.Warn("pet cache write failed",
			zap.String("tenant", e.Tenant), zap.String("pet_id", e.PetID), zap.Error(err))
		return err
	}
	c.metrics.CacheWrites.WithLabelValues("ok").Inc()
	return nil
}

// SetPetState caches one pet under its own key and in the tenant hash.
func (c *PetCache) SetPetState(ctx context.Context, tenant string, state PetState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal pet state: %w", err)
	}

	if err := c.client.Set(ctx, c.petKey(tenant, state.ID), data, c.expiration); err != nil {
		return err
	}
	if err := c.client.HSet(ctx, c.tenantKey(tenant), state.ID, string(data)); err != nil {
		return err
	}
	return c.client.Expire(ctx, c.tenantKey(tenant), c.expiration)
}

// GetPetState retrieves the cached state of a pet.
func (c *PetCache) GetPetState(ctx context.Context, tenant, petID string) (*PetState, error) {
	data, err := c.client.Get(ctx, c.petKey(tenant, petID))
	if err != nil {
		return nil, err // Cache miss or error
	}

	var state PetState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pet state: %w", err)
	}
	return &state, nil
}

// GetTenantPets retrieves every cached pet of a tenant.
func (c *PetCache) GetTenantPets(ctx context.Context, tenant string) (map[string]PetState, error) {
	data, err := c.client.HGetAll(ctx, c.tenantKey(tenant))
	if err != nil {
		return nil, err
	}

	states := make(map[string]PetState, len(data))
	for id, raw := range data {
		var state PetState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state for %s: %w", id, err)
		}
		states[id] = state
	}
	return states, nil
}

// InvalidatePet removes one pet from the cache.
func (c *PetCache) InvalidatePet(ctx context.Context, tenant, petID string) error {
	if err := c.client.Del(ctx, c.petKey(tenant, petID)); err != nil {
		return err
	}
	return c.client.HDel(ctx, c.tenantKey(tenant), petID)
}

// InvalidateTenant removes the tenant hash.
func (c *PetCache) InvalidateTenant(ctx context.Context, tenant string) error {
	return c.client.Del(ctx, c.tenantKey(tenant))
}

func (c *PetCache) petKey(tenant, petID string) string {
	return fmt.Sprintf("petguild:%s:pet:%s", tenant, petID)
}

func (c *PetCache) tenantKey(tenant string) string {
	return fmt.Sprintf("petguild:%s:pets", tenant)
}

// Client adapts a go-redis client to RedisClient.
type Client struct {
	rdb *redis.Client
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
	return c.rdb.HSet(ctx, key, values...).Err()
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, key, fields...).Err()
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.rdb.Expire(ctx, key, expiration).Err()
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.rdb.Close()
}

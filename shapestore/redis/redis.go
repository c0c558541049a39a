// Package redis provides a Redis-backed shapestore.Store. Each descriptor is
// a JSON document at <prefix>shape:<name> holding the canonical encoding and
// its fingerprint, so that several processes can share one registry of
// descriptors.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/optshape/shape"
	"github.com/ggoodman/optshape/shapestore"
)

// Config for the Redis store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SHAPES_KEY_PREFIX
	KeyPrefix string `env:"SHAPES_KEY_PREFIX,default=optshape:"`
	// DB selects the logical database. ENV: SHAPES_REDIS_DB
	DB int `env:"SHAPES_REDIS_DB,default=0"`
}

const defaultKeyPrefix = "optshape:"

// Store implements shapestore.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ shapestore.Store = (*Store)(nil)

// storedShape is the document stored at each key.
type storedShape struct {
	Fingerprint string          `json:"fingerprint"`
	Shape       json.RawMessage `json:"shape"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New connects to Redis and verifies the connection with PING.
func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cl, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. An empty prefix means the default.
func NewWithClient(cl *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Store{client: cl, keyPrefix: keyPrefix}
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(name string) string { return s.keyPrefix + "shape:" + name }

func (s *Store) Put(ctx context.Context, name string, sh shape.Shape) (string, error) {
	b, fp, err := shapestore.Encode(name, sh)
	if err != nil {
		return "", err
	}
	doc, err := json.Marshal(storedShape{Fingerprint: fp, Shape: b, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal stored shape: %w", err)
	}
	if err := s.client.Set(ctx, s.key(name), doc, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to set key %s: %w", s.key(name), err)
	}
	return fp, nil
}

func (s *Store) Get(ctx context.Context, name string) (shape.Shape, error) {
	raw, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shapestore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", s.key(name), err)
	}
	var doc storedShape
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored shape: %w", err)
	}
	return shape.Unmarshal(doc.Shape)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	n, err := s.client.Del(ctx, s.key(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", s.key(name), err)
	}
	if n == 0 {
		return shapestore.ErrNotFound
	}
	return nil
}

// List walks the key space with SCAN; it never blocks the server with KEYS.
func (s *Store) List(ctx context.Context) ([]string, error) {
	prefix := s.keyPrefix + "shape:"
	var names []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"openob.io/openob/internal/link"
)

// DefaultRedisPort is appended to a configuration host given without a port.
const DefaultRedisPort = "6379"

// RedisOptions tunes the Redis client.
type RedisOptions struct {
	DB           int
	Password     string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisDialer connects to Redis with go-redis.
type RedisDialer struct {
	Options RedisOptions
}

// Dial opens a client and pings once. The ping is what establishes the connection; nothing
// else about the server is checked.
func (d RedisDialer) Dial(ctx context.Context, addr string) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         NormalizeAddr(addr),
		DB:           d.Options.DB,
		Password:     d.Options.Password,
		DialTimeout:  d.Options.DialTimeout,
		ReadTimeout:  d.Options.ReadTimeout,
		WriteTimeout: d.Options.WriteTimeout,
		MaxRetries:   -1, // retries belong to the manager loop
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return &redisStore{client: client}, nil
}

// NormalizeAddr appends the default Redis port when addr has none.
func NormalizeAddr(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, DefaultRedisPort)
}

type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *redisStore) Close() error { return s.client.Close() }

func namespace(linkName string) string { return link.Namespace(linkName) }

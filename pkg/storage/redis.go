package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/chartpay/pkg/payments"
)

// RedisStore keeps the active request in Redis so every device of a user
// sees the same cached request.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := config.RedisKeyPrefix
	if prefix == "" {
		prefix = "chartpay"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: config.TTL}, nil
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("%s:active_payment_request:%s", s.prefix, userID)
}

// Load retrieves the cached request, nil on a miss
func (s *RedisStore) Load(ctx context.Context, userID string) (*payments.PaymentRequest, error) {
	key := s.key(userID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var r payments.PaymentRequest
	if err := json.Unmarshal(data, &r); err != nil {
		// Drop corrupt entries so the next Initiate can recover.
		s.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal payment request: %w", err)
	}
	return &r, nil
}

// Save stores the request with the configured TTL
func (s *RedisStore) Save(ctx context.Context, userID string, r payments.PaymentRequest) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes the cached request
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// HealthCheck pings Redis
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package asyncstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carles-abarca/NEO6/internal/errors"
)

// RedisConfig mirrors the teacher's own cache.Config shape.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore is the distributed-deployment backing for Store, sharing
// async results across proxy instances. Construction pings the server
// once so a misconfigured Redis fails fast at startup.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     25,
		MinIdleConns: 5,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.ConfigInvalid(fmt.Sprintf("redis async store: ping failed: %v", err))
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Put(ctx context.Context, id string) error {
	now := time.Now()
	return s.save(ctx, Result{ID: id, Status: Pending, CreatedAt: now, UpdatedAt: now})
}

func (s *RedisStore) Complete(ctx context.Context, id string, data interface{}) error {
	r, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		r = Result{ID: id, CreatedAt: time.Now()}
	}
	r.Status, r.Data, r.UpdatedAt = Done, data, time.Now()
	return s.save(ctx, r)
}

func (s *RedisStore) Fail(ctx context.Context, id string, errMsg string) error {
	r, ok, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		r = Result{ID: id, CreatedAt: time.Now()}
	}
	r.Status, r.Error, r.UpdatedAt = Failed, errMsg, time.Now()
	return s.save(ctx, r)
}

func (s *RedisStore) Get(ctx context.Context, id string) (Result, bool, error) {
	val, err := s.client.Get(ctx, key(id)).Result()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, errors.Internal(fmt.Sprintf("redis async store: get %s: %v", id, err))
	}

	var r Result
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return Result{}, false, errors.Internal(fmt.Sprintf("redis async store: decode %s: %v", id, err))
	}
	return r, true, nil
}

func (s *RedisStore) save(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Internal(fmt.Sprintf("redis async store: encode %s: %v", r.ID, err))
	}
	if err := s.client.Set(ctx, key(r.ID), data, s.ttl).Err(); err != nil {
		return errors.Internal(fmt.Sprintf("redis async store: set %s: %v", r.ID, err))
	}
	return nil
}

func key(id string) string { return "neo6:async:" + id }

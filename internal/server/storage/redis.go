package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const (
	sharePrefix = "share:"
	// expiryGrace keeps a record in Redis a little past ExpiresAt so the
	// sweeper, not Redis eviction, is what normally removes it.
	expiryGrace   = time.Minute
	maxSaveRetry  = 3
	scanBatchSize = 100
)

// RedisStore stores each share as a JSON value under share:<CODE>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(options *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying connection for components that share it.
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) Create(ctx context.Context, share *Share) error {
	data, err := json.Marshal(share)
	if err != nil {
		return fmt.Errorf("failed to encode share: %w", err)
	}

	ok, err := r.client.SetNX(ctx, shareKey(share.Code), data, recordTTL(share)).Result()
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	if !ok {
		return ErrCodeCollision
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, code string) (*Share, error) {
	data, err := r.client.Get(ctx, shareKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return decodeShare(data)
}

func (r *RedisStore) Save(ctx context.Context, share *Share, from Revision) error {
	key := shareKey(share.Code)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		stored, err := decodeShare(data)
		if err != nil {
			return err
		}
		if stored.Revision() != from {
			return ErrConflict
		}
		stored.Content = share.Content
		stored.Views = share.Views
		stored.IsAccessed = share.IsAccessed

		newData, err := json.Marshal(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, newData, redis.SetArgs{Mode: "XX", KeepTTL: true})
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveRetry; i++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, redis.Nil):
			return ErrNotFound
		case errors.Is(err, ErrConflict):
			return ErrConflict
		default:
			return fmt.Errorf("failed to save share: %w", err)
		}
	}
	return fmt.Errorf("failed to save share: %w", redis.TxFailedErr)
}

func (r *RedisStore) Delete(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, shareKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

func (r *RedisStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := r.scan(ctx, func(key string, share *Share) error {
		if !share.ExpiresAt.Before(now) {
			return nil
		}
		n, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep expired shares: %w", err)
	}
	return removed, nil
}

func (r *RedisStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	stats := NewStats()
	err := r.scan(ctx, func(_ string, share *Share) error {
		stats.Add(share, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// scan walks every share key. Keys that vanish mid-scan are skipped.
func (r *RedisStore) scan(ctx context.Context, fn func(key string, share *Share) error) error {
	iter := r.client.Scan(ctx, 0, sharePrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return err
		}
		share, err := decodeShare(data)
		if err != nil {
			return err
		}
		if err := fn(key, share); err != nil {
			return err
		}
	}
	return iter.Err()
}

func shareKey(code string) string {
	return sharePrefix + code
}

func recordTTL(share *Share) time.Duration {
	ttl := time.Until(share.ExpiresAt) + expiryGrace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func decodeShare(data []byte) (*Share, error) {
	var share Share
	if err := json.Unmarshal(data, &share); err != nil {
		return nil, fmt.Errorf("failed to decode share: %w", err)
	}
	return &share, nil
}

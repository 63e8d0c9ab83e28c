// Package kv 封裝快取層的原子操作
//
// 上層的所有一致性保證都建立在「單一指令原子」之上；
// 唯一的交易是 TrimList，且只涉及單一 key。
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 快取層需要的原子操作集合
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string) (bool, error)
	// GetSet 返回舊值；existed 為 false 表示原本沒有值
	GetSet(ctx context.Context, key, value string) (old string, existed bool, err error)
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	// TrimList 只保留前 keep 筆，並返回同一交易內被截掉的元素
	TrimList(ctx context.Context, key string, keep int64) ([]string, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LRem(ctx context.Context, key string, value string) (int64, error)

	SAdd(ctx context.Context, key, member string) (bool, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	Ping(ctx context.Context) error
}

// RedisStore 以 Redis 實作 Store
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 建立 RedisStore
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	return s.client.SetNX(ctx, key, value, 0).Result()
}

func (s *RedisStore) GetSet(ctx context.Context, key, value string) (string, bool, error) {
	old, err := s.client.GetSet(ctx, key, value).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return old, true, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	return s.client.Decr(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.Expire(ctx, key, ttl).Result()
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return s.client.LPush(ctx, key, args...).Result()
}

// TrimList 在同一個 MULTI 內讀取尾端並截斷，
// 兩者之間不會插入其他用戶端的 LPUSH
func (s *RedisStore) TrimList(ctx context.Context, key string, keep int64) ([]string, error) {
	var tail *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		tail = pipe.LRange(ctx, key, keep, -1)
		pipe.LTrim(ctx, key, 0, keep-1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tail.Val(), nil
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

// LRem 移除所有等於 value 的元素
func (s *RedisStore) LRem(ctx context.Context, key string, value string) (int64, error) {
	return s.client.LRem(ctx, key, 0, value).Result()
}

// SAdd 返回 true 表示本次呼叫新增了成員
//
// 上層用這個返回值當作「只有一個呼叫者能插入」的閘門。
func (s *RedisStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Result()
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, key, member).Result()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ Store = (*RedisStore)(nil)

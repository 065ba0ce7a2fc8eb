package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "localstate:"

// RedisStore implements KeyValueStore on Redis. All keys live under a prefix
// so several clients can share one instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at addr. An empty prefix uses "localstate:".
func NewRedisStore(addr, password, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks server connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return Unavailable("Ping", "", err)
	}
	return nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return Unavailable("SetItem", key, err)
	}
	return nil
}

func (s *RedisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, Unavailable("GetItem", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return Unavailable("RemoveItem", key, err)
	}
	return nil
}

func (s *RedisStore) SetMany(ctx context.Context, pairs []Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	values := make([]any, 0, len(pairs)*2)
	for _, p := range pairs {
		values = append(values, s.key(p.Key), p.Value)
	}
	if err := s.client.MSet(ctx, values...).Err(); err != nil {
		return Unavailable("SetMany", pairs[0].Key, err)
	}
	return nil
}

func (s *RedisStore) GetMany(ctx context.Context, keys []string) ([]Item, error) {
	if len(keys) == 0 {
		return []Item{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, Unavailable("GetMany", "", err)
	}

	result := make([]Item, 0, len(keys))
	for i, k := range keys {
		item := Item{Key: k}
		switch v := values[i].(type) {
		case nil:
		case string:
			item.Value, item.Found = v, true
		default:
			return nil, Corrupted("GetMany", k, fmt.Errorf("unexpected redis value type %T", v))
		}
		result = append(result, item)
	}
	return result, nil
}

func (s *RedisStore) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return Unavailable("RemoveMany", keys[0], err)
	}
	return nil
}

// ListKeys scans every key under the store prefix and returns them, sorted,
// without the prefix.
func (s *RedisStore) ListKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, Unavailable("ListKeys", "", err)
	}
	sort.Strings(keys)
	return keys, nil
}

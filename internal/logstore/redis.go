package logstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces channel logs within the Redis keyspace.
const KeyPrefix = "chatlog:"

// RedisLog stores each channel's message log as a Redis list. Append maps to
// RPUSH, Len to LLEN, and Range to LRANGE, so entry indices are exactly list
// indices.
type RedisLog struct {
	client *redis.Client
}

// NewRedisLog creates a RedisLog backed by the given client.
func NewRedisLog(client *redis.Client) *RedisLog {
	return &RedisLog{client: client}
}

// Len returns the length of the channel's list. LLEN reports 0 for a missing
// key, so unseen channels are naturally empty.
func (l *RedisLog) Len(ctx context.Context, channel string) (int64, error) {
	n, err := l.client.LLen(ctx, KeyPrefix+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("logstore: llen %s: %w", channel, err)
	}
	return n, nil
}

// Append pushes one entry onto the end of the channel's list.
func (l *RedisLog) Append(ctx context.Context, channel string, entry []byte) error {
	if err := l.client.RPush(ctx, KeyPrefix+channel, entry).Err(); err != nil {
		return fmt.Errorf("logstore: rpush %s: %w", channel, err)
	}
	return nil
}

// Range reads entries [start, stop] inclusive. Redis LRANGE shares the
// package's End sentinel semantics, so the bounds pass through unchanged.
func (l *RedisLog) Range(ctx context.Context, channel string, start, stop int64) ([][]byte, error) {
	values, err := l.client.LRange(ctx, KeyPrefix+channel, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("logstore: lrange %s [%d,%d]: %w", channel, start, stop, err)
	}

	entries := make([][]byte, len(values))
	for i, v := range values {
		entries[i] = []byte(v)
	}
	return entries, nil
}

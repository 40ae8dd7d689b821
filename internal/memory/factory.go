package memory

import (
	"context"
	"strings"
)

// NewKV picks the configured backend: Redis first, then Postgres, otherwise
// an in-memory store.
func NewKV(ctx context.Context, redisURL, databaseURL string) (KV, error) {
	if strings.TrimSpace(redisURL) != "" {
		return NewRedisKV(ctx, redisURL)
	}
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresKV(ctx, databaseURL)
	}
	return NewInMemoryKV(), nil
}

// Mode names the backend kind for health reporting.
func Mode(kv KV) string {
	switch kv.(type) {
	case *RedisKV:
		return "redis"
	case *PostgresKV:
		return "postgres"
	case *InMemoryKV:
		return "in-memory"
	default:
		return "custom"
	}
}

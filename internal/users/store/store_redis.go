package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"eda/internal/users/models"
	"eda/pkg/platform/sentinel"
)

// RedisStore keeps one hash per record at "{table}:{pk}#{sk}". HSET
// overwrites existing fields, which gives the same upsert semantics as the
// SQL store.
type RedisStore struct {
	client *redis.Client
	table  string
}

// NewRedis creates a Redis-backed store namespaced by table.
func NewRedis(client *redis.Client, table string) *RedisStore {
	return &RedisStore{client: client, table: table}
}

func (s *RedisStore) key(pk, sk string) string {
	return fmt.Sprintf("%s:%s#%s", s.table, pk, sk)
}

func (s *RedisStore) Put(ctx context.Context, record models.UserRecord) error {
	if err := checkKey(record); err != nil {
		return err
	}
	err := s.client.HSet(ctx, s.key(record.PK, record.SK),
		"PK", record.PK,
		"SK", record.SK,
		"created_at", record.CreatedAtISO(),
	).Err()
	if err != nil {
		return writeFailed(record, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, pk, sk string) (*models.UserRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(pk, sk)).Result()
	if err != nil {
		return nil, fmt.Errorf("get user record: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s/%s: %w", pk, sk, err)
	}
	return &models.UserRecord{PK: fields["PK"], SK: fields["SK"], CreatedAt: createdAt}, nil
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eda/internal/users/models"
	"eda/internal/users/store"
	"eda/pkg/platform/sentinel"
	"eda/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client, "eda-user-table")
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestPutThenGet() {
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 8, 0, 0, 123, time.UTC)

	s.Require().NoError(s.store.Put(ctx, models.UserRecord{PK: "alice@example.com", SK: "alice", CreatedAt: createdAt}))

	got, err := s.store.Get(ctx, "alice@example.com", "alice")
	s.Require().NoError(err)
	s.Equal(models.UserRecord{PK: "alice@example.com", SK: "alice", CreatedAt: createdAt}, *got)
}

func (s *RedisStoreSuite) TestPutOverwrites() {
	ctx := context.Background()
	first := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Put(ctx, models.UserRecord{PK: "alice@example.com", SK: "alice", CreatedAt: first}))
	s.Require().NoError(s.store.Put(ctx, models.UserRecord{PK: "alice@example.com", SK: "alice", CreatedAt: first.Add(time.Hour)}))

	got, err := s.store.Get(ctx, "alice@example.com", "alice")
	s.Require().NoError(err)
	s.Equal(first.Add(time.Hour), got.CreatedAt)

	keys, err := s.redis.Client.Keys(ctx, "eda-user-table:*").Result()
	s.Require().NoError(err)
	s.Len(keys, 1)
}

func (s *RedisStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), "nobody@example.com", "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

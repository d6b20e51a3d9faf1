package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eda/internal/users/models"
	"eda/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	createdAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Put then Get returns the record", func(t *testing.T) {
		rec := models.UserRecord{PK: "alice@example.com", SK: "alice", CreatedAt: createdAt}
		require.NoError(t, store.Put(ctx, rec))

		got, err := store.Get(ctx, "alice@example.com", "alice")
		require.NoError(t, err)
		assert.Equal(t, rec, *got)
	})

	t.Run("Put on an existing key overwrites", func(t *testing.T) {
		later := createdAt.Add(time.Hour)
		require.NoError(t, store.Put(ctx, models.UserRecord{PK: "alice@example.com", SK: "alice", CreatedAt: later}))

		got, err := store.Get(ctx, "alice@example.com", "alice")
		require.NoError(t, err)
		assert.Equal(t, later, got.CreatedAt)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("same email with another username is a distinct record", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, models.UserRecord{PK: "alice@example.com", SK: "alice2", CreatedAt: createdAt}))
		assert.Equal(t, 2, store.Len())
	})

	t.Run("Get for missing key returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "nobody@example.com", "nobody")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("empty key fields are rejected as write failures", func(t *testing.T) {
		for _, rec := range []models.UserRecord{
			{PK: "", SK: "alice"},
			{PK: "alice@example.com", SK: ""},
		} {
			err := store.Put(ctx, rec)
			assert.ErrorIs(t, err, ErrWriteFailed)
			assert.ErrorIs(t, err, ErrInvalidKey)

			var storeErr *StoreError
			require.True(t, errors.As(err, &storeErr))
			assert.Equal(t, "put", storeErr.Op)
		}
	})

	t.Run("cancelled context fails the write", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := store.Put(cctx, models.UserRecord{PK: "bob@example.com", SK: "bob", CreatedAt: createdAt})
		assert.ErrorIs(t, err, ErrWriteFailed)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = store.Get(ctx, "bob@example.com", "bob")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryStore_ConcurrentSameKeyLastWriteWins(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			rec := models.UserRecord{PK: "race@example.com", SK: "race", CreatedAt: base.Add(time.Duration(i) * time.Second)}
			assert.NoError(t, store.Put(ctx, rec))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Len())
	got, err := store.Get(ctx, "race@example.com", "race")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.Before(base))
}

func TestStoreErrorMessage(t *testing.T) {
	err := writeFailed(models.UserRecord{PK: "a@b.com", SK: "a"}, errors.New("connection refused"))
	assert.Equal(t, "put a@b.com/a: connection refused", err.Error())
}

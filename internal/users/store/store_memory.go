package store

import (
	"context"
	"sync"

	"eda/internal/users/models"
	"eda/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map. Used for local runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]models.UserRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[recordKey]models.UserRecord)}
}

func (s *InMemoryStore) Put(ctx context.Context, record models.UserRecord) error {
	if err := checkKey(record); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return writeFailed(record, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{pk: record.PK, sk: record.SK}] = record
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, pk, sk string) (*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordKey{pk: pk, sk: sk}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Health always succeeds.
func (s *InMemoryStore) Health(context.Context) error {
	return nil
}

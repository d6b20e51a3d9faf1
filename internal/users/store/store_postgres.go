package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"eda/internal/users/models"
	"eda/pkg/platform/sentinel"
	txcontext "eda/pkg/platform/tx"
)

// PostgresStore persists user records in a PostgreSQL table keyed by
// (pk, sk). Writes go through a transaction carried in the context when
// there is one.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgres creates a store over table. The table name is quoted, so names
// like "eda-user-table" are fine.
func NewPostgres(db *sql.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			pk         TEXT        NOT NULL,
			sk         TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (pk, sk)
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create user table: %w", err)
	}
	return nil
}

// Put upserts the record. The statement commits before Put returns unless
// the caller supplied its own transaction.
func (s *PostgresStore) Put(ctx context.Context, record models.UserRecord) error {
	if err := checkKey(record); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (pk, sk, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (pk, sk) DO UPDATE SET created_at = EXCLUDED.created_at
	`, s.table)
	if _, err := s.execer(ctx).ExecContext(ctx, query, record.PK, record.SK, record.CreatedAt.UTC()); err != nil {
		return writeFailed(record, describePQ(err))
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, pk, sk string) (*models.UserRecord, error) {
	query := fmt.Sprintf(`SELECT pk, sk, created_at FROM %s WHERE pk = $1 AND sk = $2`, s.table)
	var record models.UserRecord
	err := s.db.QueryRowContext(ctx, query, pk, sk).Scan(&record.PK, &record.SK, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get user record: %w", err)
	}
	return &record, nil
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// describePQ prefixes server errors with their condition name so logs say
// "unique_violation" or "undefined_table" instead of a bare SQLSTATE.
func describePQ(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("postgres %s: %w", pqErr.Code.Name(), err)
	}
	return err
}

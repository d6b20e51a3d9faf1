// Package store persists user records. Every backend upserts on the
// (PK, SK) pair and reports write faults as *StoreError.
package store

import (
	"errors"
	"fmt"

	"eda/internal/users/models"
)

var (
	// ErrWriteFailed matches every failed Put, whatever the backend cause.
	ErrWriteFailed = errors.New("write failed")
	// ErrInvalidKey is returned when PK or SK is empty.
	ErrInvalidKey = errors.New("primary and sort key must be non-empty")
)

// StoreError describes a failed store operation.
type StoreError struct {
	Op  string
	PK  string
	SK  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.PK, e.SK, e.Err)
}

// Unwrap exposes both ErrWriteFailed and the underlying cause.
func (e *StoreError) Unwrap() []error {
	return []error{ErrWriteFailed, e.Err}
}

func writeFailed(record models.UserRecord, err error) error {
	return &StoreError{Op: "put", PK: record.PK, SK: record.SK, Err: err}
}

func checkKey(record models.UserRecord) error {
	if record.PK == "" || record.SK == "" {
		return writeFailed(record, ErrInvalidKey)
	}
	return nil
}

type recordKey struct {
	pk string
	sk string
}

package models

import (
	"time"

	"eda/pkg/email"
	dErrors "eda/pkg/domain-errors"
)

// Event classification for users announced on the bus.
const (
	EventSource           = "eda_lecture"
	DetailTypeUserCreated = "user_created"
)

// UserRecord is the stored user. PK is the email, SK the username; the pair
// is the record's identity and a second write for the same pair overwrites.
type UserRecord struct {
	PK        string
	SK        string
	CreatedAt time.Time
}

// NewUserRecord builds the record for a validated request.
func NewUserRecord(req CreateUserRequest, createdAt time.Time) UserRecord {
	return UserRecord{
		PK:        req.Email,
		SK:        req.Username,
		CreatedAt: createdAt,
	}
}

// Email returns the partition key.
func (r UserRecord) Email() string { return r.PK }

// Username returns the sort key.
func (r UserRecord) Username() string { return r.SK }

// CreatedAtISO formats CreatedAt the way it travels in events and stores.
func (r UserRecord) CreatedAtISO() string {
	return r.CreatedAt.UTC().Format(time.RFC3339Nano)
}

// CreateUserRequest is the body of POST /new-user.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Validate checks both required fields. The first failing field is reported.
func (r CreateUserRequest) Validate() error {
	if r.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !email.IsValid(r.Email) {
		return dErrors.New(dErrors.CodeValidation, "email must match pattern "+email.Pattern)
	}
	return nil
}

// UserCreatedDetail is the detail payload of a user_created event.
type UserCreatedDetail struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// NewUserCreatedDetail derives the event detail from a stored record.
func NewUserCreatedDetail(r UserRecord) UserCreatedDetail {
	return UserCreatedDetail{
		Username:  r.Username(),
		Email:     r.Email(),
		CreatedAt: r.CreatedAtISO(),
	}
}

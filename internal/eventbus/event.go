// Package eventbus carries domain events from publishers to the targets
// named by routing rules. Two buses share one Router: LocalBus delivers
// in-process, KafkaBus goes through a topic and a consumer loop.
package eventbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned for events missing classification fields or
// carrying a detail that is not a JSON object.
var ErrInvalidEvent = errors.New("invalid event")

// DomainEvent is one published fact. ID and Time are for logs and record
// keys; consumers must not deduplicate on ID.
type DomainEvent struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	DetailType   string          `json:"detail-type"`
	Detail       json.RawMessage `json:"detail"`
	EventBusName string          `json:"event-bus-name"`
	Time         time.Time       `json:"time"`
}

// NewEvent marshals detail and stamps a fresh ID.
func NewEvent(busName, source, detailType string, detail any, now time.Time) (DomainEvent, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("marshal %s detail: %w", detailType, err)
	}
	event := DomainEvent{
		ID:           uuid.NewString(),
		Source:       source,
		DetailType:   detailType,
		Detail:       raw,
		EventBusName: busName,
		Time:         now.UTC(),
	}
	if err := event.Validate(); err != nil {
		return DomainEvent{}, err
	}
	return event, nil
}

// Validate checks the classification fields and that Detail is an object.
func (e DomainEvent) Validate() error {
	if e.Source == "" || e.DetailType == "" {
		return fmt.Errorf("%w: source and detail-type are required", ErrInvalidEvent)
	}
	trimmed := bytes.TrimSpace(e.Detail)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: detail must be a JSON object", ErrInvalidEvent)
	}
	return nil
}

// DecodeDetail unmarshals Detail into v.
func (e DomainEvent) DecodeDetail(v any) error {
	if err := json.Unmarshal(e.Detail, v); err != nil {
		return fmt.Errorf("decode %s detail: %w", e.DetailType, err)
	}
	return nil
}

// Decode parses a wire-format event and validates it.
func Decode(data []byte) (DomainEvent, error) {
	var event DomainEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return DomainEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := event.Validate(); err != nil {
		return DomainEvent{}, err
	}
	return event, nil
}

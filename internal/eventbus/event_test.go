package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	event, err := NewEvent("eda-lecture-event-bus", "eda_lecture", "user_created",
		map[string]string{"email": "a@b.com"}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "eda_lecture", event.Source)
	assert.Equal(t, "user_created", event.DetailType)
	assert.Equal(t, "eda-lecture-event-bus", event.EventBusName)
	assert.Equal(t, time.UTC, event.Time.Location())
	assert.JSONEq(t, `{"email":"a@b.com"}`, string(event.Detail))

	other, err := NewEvent("bus", "eda_lecture", "user_created", map[string]string{}, now)
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestNewEventRejectsNonObjectDetail(t *testing.T) {
	_, err := NewEvent("bus", "eda_lecture", "user_created", []string{"a"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewEvent("bus", "", "user_created", map[string]string{}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEventWireShape(t *testing.T) {
	event := DomainEvent{
		ID:           "evt-1",
		Source:       "eda_lecture",
		DetailType:   "user_created",
		Detail:       json.RawMessage(`{"username":"alice"}`),
		EventBusName: "bus",
		Time:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "evt-1",
		"source": "eda_lecture",
		"detail-type": "user_created",
		"detail": {"username": "alice"},
		"event-bus-name": "bus",
		"time": "2024-01-01T00:00:00Z"
	}`, string(data))

	decoded, err := Decode(data)
	require.NoError(t, err)
	var detail struct {
		Username string `json:"username"`
	}
	require.NoError(t, decoded.DecodeDetail(&detail))
	assert.Equal(t, "alice", detail.Username)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = Decode([]byte(`{"source":"eda_lecture","detail-type":"user_created","detail":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

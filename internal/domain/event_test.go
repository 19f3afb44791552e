package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_MarshalJSON(t *testing.T) {
	e := Event{
		Seq:     7,
		Time:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload: NewResult{Outcome: NewOutcome(42, 0, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))},
	}

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "new_result", decoded["type"])
	assert.Equal(t, float64(7), decoded["sequence"])
	assert.Equal(t, "2026-03-01T12:00:00Z", decoded["timestamp"])

	payload := decoded["payload"].(map[string]any)
	out := payload["outcome"].(map[string]any)
	assert.Equal(t, "green", out["color"])
	assert.Equal(t, float64(42), out["spin_number"])
}

func TestEvent_Type(t *testing.T) {
	assert.Equal(t, EventBetResolved, Event{Payload: BetResolved{}}.Type())
	assert.Equal(t, EventType(""), Event{}.Type())
}

package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"monthly-spend/internal/core"
)

const contentType = "application/json"

// EncodeChange serializes ev for publishing. Events without an id get a
// fresh one so deliveries can be traced across retries.
func EncodeChange(ev core.ChangeEvent) (core.ChangeEvent, []byte, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return ev, nil, fmt.Errorf("marshal change event: %w", err)
	}
	return ev, body, nil
}

// DecodeChange parses a delivery body. Malformed payloads are invalid
// events and are never redelivered.
func DecodeChange(body []byte) (core.ChangeEvent, error) {
	var ev core.ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return core.ChangeEvent{}, fmt.Errorf("%w: decode message: %v", core.ErrInvalidEvent, err)
	}
	if ev.Kind == "" {
		return core.ChangeEvent{}, fmt.Errorf("%w: message has no kind", core.ErrInvalidEvent)
	}
	return ev, nil
}

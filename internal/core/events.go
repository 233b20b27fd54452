package core

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindPurchase     EventKind = "purchase"
	KindSubscription EventKind = "subscription"
)

const (
	OpCreated EventOp = "created"
	OpUpdated EventOp = "updated"
	OpDeleted EventOp = "deleted"
)

type (
	EventKind string
	EventOp   string

	// ChangeEvent is the notification emitted when a purchase or
	// subscription record is created, updated or deleted. Previous and
	// Current hold the raw record; their shape depends on Kind.
	ChangeEvent struct {
		ID        string          `json:"id,omitempty"`
		Kind      EventKind       `json:"kind"`
		Op        EventOp         `json:"op,omitempty"`
		Previous  json.RawMessage `json:"previous,omitempty"`
		Current   json.RawMessage `json:"current,omitempty"`
		Timestamp time.Time       `json:"timestamp,omitempty"`
	}
)

func hasRecord(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ResolveOp returns the operation implied by which records are present,
// checking it against an explicit Op when one was sent.
func (e ChangeEvent) ResolveOp() (EventOp, error) {
	prev, cur := hasRecord(e.Previous), hasRecord(e.Current)

	var implied EventOp
	switch {
	case prev && cur:
		implied = OpUpdated
	case cur:
		implied = OpCreated
	case prev:
		implied = OpDeleted
	default:
		return "", fmt.Errorf("%w: event carries no record", ErrInvalidEvent)
	}

	if e.Op != "" && e.Op != implied {
		return "", fmt.Errorf("%w: op %q does not match records (%s)", ErrInvalidEvent, e.Op, implied)
	}
	return implied, nil
}

// Purchases decodes the previous and current purchase records. Absent
// records are returned as nil.
func (e ChangeEvent) Purchases() (prev, cur *Purchase, err error) {
	if e.Kind != KindPurchase {
		return nil, nil, fmt.Errorf("%w: expected purchase event, got %q", ErrInvalidEvent, e.Kind)
	}
	if prev, err = decodeRecord[Purchase](e.Previous); err != nil {
		return nil, nil, err
	}
	if cur, err = decodeRecord[Purchase](e.Current); err != nil {
		return nil, nil, err
	}
	return prev, cur, nil
}

// Subscriptions decodes the previous and current subscription records.
func (e ChangeEvent) Subscriptions() (prev, cur *Subscription, err error) {
	if e.Kind != KindSubscription {
		return nil, nil, fmt.Errorf("%w: expected subscription event, got %q", ErrInvalidEvent, e.Kind)
	}
	if prev, err = decodeRecord[Subscription](e.Previous); err != nil {
		return nil, nil, err
	}
	if cur, err = decodeRecord[Subscription](e.Current); err != nil {
		return nil, nil, err
	}
	return prev, cur, nil
}

func decodeRecord[T any](raw json.RawMessage) (*T, error) {
	if !hasRecord(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", ErrInvalidEvent, err)
	}
	return &v, nil
}

// NewPurchaseEvent builds an envelope for a purchase change.
func NewPurchaseEvent(id string, prev, cur *Purchase) (ChangeEvent, error) {
	return newEvent(id, KindPurchase, prev, cur)
}

// NewSubscriptionEvent builds an envelope for a subscription change.
func NewSubscriptionEvent(id string, prev, cur *Subscription) (ChangeEvent, error) {
	return newEvent(id, KindSubscription, prev, cur)
}

func newEvent[T any](id string, kind EventKind, prev, cur *T) (ChangeEvent, error) {
	ev := ChangeEvent{ID: id, Kind: kind, Timestamp: time.Now().UTC()}
	if prev != nil {
		b, err := json.Marshal(prev)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("marshal previous: %w", err)
		}
		ev.Previous = b
	}
	if cur != nil {
		b, err := json.Marshal(cur)
		if err != nil {
			return ChangeEvent{}, fmt.Errorf("marshal current: %w", err)
		}
		ev.Current = b
	}
	op, err := ev.ResolveOp()
	if err != nil {
		return ChangeEvent{}, err
	}
	ev.Op = op
	return ev, nil
}

// Package billing receives payment-provider webhooks, verifies them and
// hands each event to an ordered list of handlers.
//
// Events are delivered at least once. The webhook handler drops repeats by
// event ID before dispatch, so handlers such as the credit grant can assume
// they run once per event.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event types the built-in handlers react to.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	subscriptionEventsWildcard = "customer.subscription.*"
)

// Event is the envelope of a webhook delivery. Object holds the resource
// the event is about and is decoded by each handler.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Created  int64     `json:"created"`
	Livemode bool      `json:"livemode"`
	Data     EventData `json:"data"`
}

// EventData wraps the event's resource.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// CreatedAt returns Created as a time.
func (e *Event) CreatedAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// ParseEvent decodes a verified payload.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, errors.New("event is missing id or type")
	}
	return &ev, nil
}

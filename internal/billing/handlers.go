package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// checkoutSession is the part of a checkout session the credit grant reads.
// The frontend puts the agent's user ID in client_reference_id and the
// purchased credit count in metadata.
type checkoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

func (s *checkoutSession) userID() string {
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata["userId"]
}

// GrantCredits adds purchased staging credits to the buyer's account.
// Unpaid sessions (delayed payment methods) are skipped.
func GrantCredits(accounts store.AccountStore) HandlerFunc {
	return func(ctx context.Context, ev *Event) error {
		var session checkoutSession
		if err := json.Unmarshal(ev.Data.Object, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
			log.Info().Str("sessionId", session.ID).Str("paymentStatus", session.PaymentStatus).Msg("Checkout not paid yet, no credits granted")
			return nil
		}

		userID := session.userID()
		if userID == "" {
			return errors.New("checkout session has no user reference")
		}
		credits, err := strconv.ParseInt(session.Metadata["credits"], 10, 64)
		if err != nil || credits <= 0 {
			return fmt.Errorf("checkout session %s: invalid credits %q", session.ID, session.Metadata["credits"])
		}

		balance, err := accounts.AddCredits(ctx, userID, credits)
		if err != nil {
			return err
		}
		log.Info().
			Str("userId", userID).
			Str("sessionId", session.ID).
			Int64("credits", credits).
			Int64("balance", balance).
			Msg("Credits granted")
		return nil
	}
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// SyncSubscription mirrors subscription status onto the account named in
// the subscription's metadata.
func SyncSubscription(accounts store.AccountStore) HandlerFunc {
	return func(ctx context.Context, ev *Event) error {
		var sub subscriptionObject
		if err := json.Unmarshal(ev.Data.Object, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		userID := sub.Metadata["userId"]
		if userID == "" {
			return fmt.Errorf("subscription %s has no userId metadata", sub.ID)
		}

		status := sub.Status
		if ev.Type == EventSubscriptionDeleted {
			status = "canceled"
		}
		var priceID string
		if len(sub.Items.Data) > 0 {
			priceID = sub.Items.Data[0].Price.ID
		}

		if err := accounts.SetSubscription(ctx, userID, store.Subscription{
			CustomerID: sub.Customer,
			ID:         sub.ID,
			Status:     status,
			PriceID:    priceID,
		}); err != nil {
			return err
		}
		log.Info().Str("userId", userID).Str("subscriptionId", sub.ID).Str("status", status).Msg("Subscription synced")
		return nil
	}
}

// EventsAPI is the subset of the EventBridge client the publisher uses.
type EventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventSource is the EventBridge source of published billing events.
const EventSource = "rooms-that-sell.billing"

// EventBridgePublisher forwards billing events to an event bus so other
// services can react without subscribing to the provider themselves.
type EventBridgePublisher struct {
	client  EventsAPI
	busName string
}

// NewEventBridgePublisher creates a publisher. An empty busName uses the
// account's default bus.
func NewEventBridgePublisher(client EventsAPI, busName string) *EventBridgePublisher {
	return &EventBridgePublisher{client: client, busName: busName}
}

type publishedDetail struct {
	EventID  string          `json:"eventId"`
	Type     string          `json:"type"`
	Created  int64           `json:"created"`
	Livemode bool            `json:"livemode"`
	Object   json.RawMessage `json:"object,omitempty"`
}

// Publish sends ev as one EventBridge entry with the event type as its
// detail type.
func (p *EventBridgePublisher) Publish(ctx context.Context, ev *Event) error {
	detail, err := json.Marshal(publishedDetail{
		EventID:  ev.ID,
		Type:     ev.Type,
		Created:  ev.Created,
		Livemode: ev.Livemode,
		Object:   ev.Data.Object,
	})
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(EventSource),
		DetailType: aws.String(ev.Type),
		Detail:     aws.String(string(detail)),
		Time:       aws.Time(ev.CreatedAt()),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents: %d entries failed", result.FailedEntryCount)
	}

	log.Debug().Str("eventId", ev.ID).Str("eventType", ev.Type).Msg("Billing event published to EventBridge")
	return nil
}

// RegisterDefaults wires the built-in handlers in the order they run:
// credit grant, subscription sync, then publishing. publisher may be nil.
func RegisterDefaults(d *Dispatcher, accounts store.AccountStore, publisher *EventBridgePublisher) {
	d.Register(EventCheckoutCompleted, "grant-credits", GrantCredits(accounts))
	d.Register(subscriptionEventsWildcard, "sync-subscription", SyncSubscription(accounts))
	if publisher != nil {
		d.Register("*", "publish-eventbridge", publisher.Publish)
	}
}

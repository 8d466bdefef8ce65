package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle webhook source.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// Paddle webhook source errors.
var (
	ErrInvalidSignature = errors.New("paddle webhook signature verification failed")
	ErrUnmappedEvent    = errors.New("paddle event type has no mapping")
)

// PaddleSource verifies Paddle webhook deliveries and normalizes them into
// core events. It is the ingestion seam in front of the processor: the HTTP
// handler hands it the raw request, the source hands back an Event.
type PaddleSource struct {
	verifier *paddle.WebhookVerifier
	catalog  *Catalog
}

// NewPaddleSource creates a PaddleSource. The catalog is optional; without
// one the tier stays empty and the transition defaults apply.
func NewPaddleSource(cfg PaddleConfig, catalog *Catalog) (*PaddleSource, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}
	return &PaddleSource{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		catalog:  catalog,
	}, nil
}

// paddleEnvelope is the outer shape every Paddle webhook shares.
type paddleEnvelope struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data"`
}

// ParseWebhook verifies the signature and normalizes the payload. Event
// types outside the subscription lifecycle return ErrUnmappedEvent so the
// HTTP handler can acknowledge them without touching the processor.
func (s *PaddleSource) ParseWebhook(ctx context.Context, payload []byte, signature string) (Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return Event{}, fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := s.verifier.Verify(req)
	if err != nil {
		return Event{}, fmt.Errorf("webhook verification error: %w", err)
	}
	if !valid {
		return Event{}, ErrInvalidSignature
	}

	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	return s.normalize(env)
}

func (s *PaddleSource) normalize(env paddleEnvelope) (Event, error) {
	evtType, ok := mapPaddleEventType(env.EventType)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnmappedEvent, env.EventType)
	}

	evt := Event{
		ID:         env.EventID,
		Type:       evtType,
		OccurredAt: env.OccurredAt,
	}

	data := env.Data
	if data == nil {
		return Event{}, ErrInvalidEvent
	}

	if id, ok := data["id"].(string); ok {
		evt.Payload.ObjectID = id
	}
	// Transaction events reference their subscription separately; the
	// subscription id is the object the effect is about.
	if subID, ok := data["subscription_id"].(string); ok && subID != "" {
		evt.Payload.ObjectID = subID
		evt.Payload.ProviderSubID = subID
	} else if evtType != EventCheckoutCompleted {
		evt.Payload.ProviderSubID = evt.Payload.ObjectID
	}

	if customerID, ok := data["customer_id"].(string); ok {
		evt.Payload.ProviderCustomerID = customerID
	}
	if status, ok := data["status"].(string); ok {
		evt.Payload.ProviderStatus = status
	}

	// The subject is our customer id, carried through checkout custom data.
	if customData, ok := data["custom_data"].(map[string]any); ok {
		if subjectID, ok := customData["customer_id"].(string); ok {
			evt.SubjectID = subjectID
		}
	}

	if priceID := firstPriceID(data); priceID != "" && s.catalog != nil {
		if plan, ok := s.catalog.PlanFor(priceID); ok {
			evt.Payload.Tier = plan.Tier
			evt.Payload.Amount = plan.Amount
			evt.Payload.Currency = plan.Currency
		}
	}

	if period, ok := data["current_billing_period"].(map[string]any); ok {
		evt.Payload.PeriodStart = parsePaddleTime(period["starts_at"])
		evt.Payload.PeriodEnd = parsePaddleTime(period["ends_at"])
	}

	// A scheduled cancel shows up on subscription.updated; its removal means
	// the customer changed their mind.
	if evtType == EventSubscriptionUpdated {
		cancel := false
		if change, ok := data["scheduled_change"].(map[string]any); ok {
			if action, ok := change["action"].(string); ok && action == "cancel" {
				cancel = true
			}
		}
		evt.Payload.CancelAtPeriodEnd = &cancel
	}

	if evt.SubjectID == "" || evt.Payload.ObjectID == "" {
		return Event{}, ErrInvalidEvent
	}
	return evt, nil
}

// firstPriceID digs the price id out of the first line item. Subscription
// payloads nest it under price.id, transaction payloads carry price_id.
func firstPriceID(data map[string]any) string {
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	if priceID, ok := item["price_id"].(string); ok {
		return priceID
	}
	if price, ok := item["price"].(map[string]any); ok {
		if priceID, ok := price["id"].(string); ok {
			return priceID
		}
	}
	return ""
}

func parsePaddleTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// mapPaddleEventType maps Paddle event names onto core event types. The
// second return is false for events the core does not consume.
func mapPaddleEventType(paddleEvent string) (EventType, bool) {
	switch paddleEvent {
	case "transaction.completed":
		return EventCheckoutCompleted, true
	case "subscription.created":
		return EventSubscriptionCreated, true
	case "subscription.updated", "subscription.resumed":
		return EventSubscriptionUpdated, true
	case "subscription.canceled":
		return EventSubscriptionDeleted, true
	case "transaction.payment_succeeded":
		return EventInvoicePaid, true
	case "transaction.payment_failed":
		return EventPaymentFailed, true
	default:
		return "", false
	}
}

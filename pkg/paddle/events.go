package paddle

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Notification event types handled by the billing processor.
const (
	EventTransactionCompleted  = "transaction.completed"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionPastDue   = "subscription.past_due"
)

// IsSubscriptionEvent reports whether eventType belongs to the subscription lifecycle.
func IsSubscriptionEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "subscription.")
}

// Event is the notification envelope Paddle posts to webhooks.
type Event struct {
	EventID    string          `json:"event_id" validate:"required"`
	EventType  string          `json:"event_type" validate:"required"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data" validate:"required"`
}

// CustomData holds the free-form metadata attached at checkout.
type CustomData map[string]any

func (c CustomData) String(key string) string {
	if c == nil {
		return ""
	}
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Int returns the value under key as an integer, accepting JSON numbers and
// numeric strings.
func (c CustomData) Int(key string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	switch v := c[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

type BillingPeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type Price struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"product_id"`
	CustomData CustomData `json:"custom_data"`
}

type Item struct {
	Price    Price `json:"price"`
	Quantity int   `json:"quantity"`
}

// TransactionData is the `data` object of transaction.* notifications.
type TransactionData struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     CustomData     `json:"custom_data"`
	Items          []Item         `json:"items"`
	BillingPeriod  *BillingPeriod `json:"billing_period"`
}

// SubscriptionData is the `data` object of subscription.* notifications.
type SubscriptionData struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CustomData           CustomData     `json:"custom_data"`
	Items                []Item         `json:"items"`
	CurrentBillingPeriod *BillingPeriod `json:"current_billing_period"`
}

// Tier reads the plan tier from the subscription custom data, falling back to
// the first item price carrying one.
func (s SubscriptionData) Tier() string {
	return tierFrom(s.CustomData, s.Items)
}

func (t TransactionData) Tier() string {
	return tierFrom(t.CustomData, t.Items)
}

func tierFrom(custom CustomData, items []Item) string {
	if tier := custom.String("tier"); tier != "" {
		return strings.ToLower(tier)
	}
	for _, item := range items {
		if tier := item.Price.CustomData.String("tier"); tier != "" {
			return strings.ToLower(tier)
		}
	}
	return ""
}

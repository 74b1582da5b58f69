package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
	EventOrderCompleted = "OrderCompleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type ItemPrice struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	Items      []ItemPrice `json:"items"`
	TotalCents int64       `json:"total_cents"`
}

// OrderStatusChangedPayload is shared by OrderPaid, OrderCancelled and OrderCompleted.
type OrderStatusChangedPayload struct {
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	From       Status      `json:"from"`
	To         Status      `json:"to"`
	ActorID    string      `json:"actor_id"`
	Released   []ItemPrice `json:"released,omitempty"` // hanya untuk cancel
	OccurredAt time.Time   `json:"occurred_at"`
}

var eventByAction = map[Action]string{
	ActionPay:      EventOrderPaid,
	ActionCancel:   EventOrderCancelled,
	ActionComplete: EventOrderCompleted,
}

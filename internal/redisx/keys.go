package redisx

import (
	"fmt"
	"time"
)

const (
	// Cache status order: order_status:{order_id} -> {"status": "...", "user_id": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func OrderStatusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func DedupKey(consumer, eventID string) string { return fmt.Sprintf(KeyDedup, consumer, eventID) }

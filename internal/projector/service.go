// Package projector keeps the Redis order-status cache in sync with the order
// events relayed from the outbox.
package projector

import (
	"context"
	"encoding/json"
	kafkax "github.com/ariefcatur/go-orders-inventory/internal/kafka"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/ariefcatur/go-orders-inventory/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"time"
)

type StatusStore interface {
	Put(ctx context.Context, e redisx.StatusEntry) error
}

type Deduper interface {
	MarkSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Service struct {
	Cache  StatusStore
	Dedup  Deduper
	Logger *zap.Logger
}

// HandleOrderEvent: dipasang sebagai handler consumer. Returning an error makes
// the consumer retry the event with backoff; the partition is not committed
// past it until it succeeds.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	log := s.logger().With(zap.String("topic", m.Topic), zap.Int64("offset", m.Offset))

	// 1) decode envelope; pesan rusak di-skip supaya tidak macet di partisi
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("skip undecodable event", zap.Error(err))
		return nil
	}
	entry, ok, err := project(env)
	if err != nil {
		log.Warn("skip undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if entry.OrderID == "" {
		log.Warn("skip event without order id", zap.String("event_id", env.EventID))
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	if env.EventID != "" && s.Dedup != nil {
		first, err := s.Dedup.MarkSeen(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			log.Debug("duplicate event", zap.String("event_id", env.EventID))
			return nil
		}
	}

	// 3) update cache
	if err := s.Cache.Put(ctx, entry); err != nil {
		if s.Dedup != nil && env.EventID != "" {
			_ = s.Dedup.Forget(ctx, env.EventID)
		}
		return err
	}
	log.Debug("order status projected",
		zap.String("order_id", entry.OrderID),
		zap.String("status", entry.Status),
		zap.String("event_type", env.EventType),
	)
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// project maps an envelope onto the cache entry. ok=false for event types the
// projector does not care about.
func project(env orders.Envelope) (redisx.StatusEntry, bool, error) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return redisx.StatusEntry{}, false, err
		}
		return redisx.StatusEntry{
			OrderID:   p.OrderID,
			UserID:    p.UserID,
			Status:    string(orders.StatusCreated),
			UpdatedAt: occurred(env.OccurredAt, time.Time{}),
		}, true, nil
	case orders.EventOrderPaid, orders.EventOrderCancelled, orders.EventOrderCompleted:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return redisx.StatusEntry{}, false, err
		}
		return redisx.StatusEntry{
			OrderID:   p.OrderID,
			UserID:    p.UserID,
			Status:    string(p.To),
			UpdatedAt: occurred(p.OccurredAt, env.OccurredAt),
		}, true, nil
	}
	return redisx.StatusEntry{}, false, nil
}

func occurred(primary, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	return fallback.UTC()
}

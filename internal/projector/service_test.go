package projector

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/ariefcatur/go-orders-inventory/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func event(t *testing.T, id, typ string, payload any) kafkago.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	value, err := json.Marshal(orders.Envelope{
		EventID:      id,
		EventType:    typ,
		EventVersion: 1,
		OccurredAt:   base,
		Producer:     "order-api",
		Payload:      body,
	})
	require.NoError(t, err)
	return kafkago.Message{Topic: "order.events", Value: value}
}

func newService(t *testing.T) (*Service, *redisx.StatusCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := redisx.NewStatusCache(rdb)
	return &Service{Cache: cache, Dedup: redisx.NewDedup(rdb, "projector")}, cache
}

func TestProjectsLifecycle(t *testing.T) {
	svc, cache := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleOrderEvent(ctx, event(t, "ev-1", orders.EventOrderCreated, orders.OrderCreatedPayload{
		OrderID: "o-1", UserID: "alice", TotalCents: 500,
	})))
	got, ok, err := cache.Get(ctx, "o-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "CREATED", got.Status)
	require.Equal(t, "alice", got.UserID)

	require.NoError(t, svc.HandleOrderEvent(ctx, event(t, "ev-2", orders.EventOrderPaid, orders.OrderStatusChangedPayload{
		OrderID: "o-1", UserID: "alice", From: orders.StatusCreated, To: orders.StatusPaid, OccurredAt: base.Add(time.Minute),
	})))
	got, _, err = cache.Get(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, "PAID", got.Status)
}

func TestDuplicateAndLateEventsDoNotRegress(t *testing.T) {
	svc, cache := newService(t)
	ctx := context.Background()

	paid := event(t, "ev-2", orders.EventOrderPaid, orders.OrderStatusChangedPayload{
		OrderID: "o-1", UserID: "alice", To: orders.StatusPaid, OccurredAt: base.Add(time.Minute),
	})
	require.NoError(t, svc.HandleOrderEvent(ctx, paid))

	// created datang terlambat dengan occurred_at lebih lama
	require.NoError(t, svc.HandleOrderEvent(ctx, event(t, "ev-1", orders.EventOrderCreated, orders.OrderCreatedPayload{OrderID: "o-1", UserID: "alice"})))
	got, _, err := cache.Get(ctx, "o-1")
	require.NoError(t, err)
	require.Equal(t, "PAID", got.Status)

	require.NoError(t, cache.Delete(ctx, "o-1"))
	require.NoError(t, svc.HandleOrderEvent(ctx, paid))
	_, ok, err := cache.Get(ctx, "o-1")
	require.NoError(t, err)
	require.False(t, ok, "redelivered event is deduplicated")
}

func TestSkipsPoisonAndForeignMessages(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleOrderEvent(ctx, kafkago.Message{Value: []byte("{broken")}))
	require.NoError(t, svc.HandleOrderEvent(ctx, event(t, "ev-9", "StockReserved", map[string]string{"order_id": "o-1"})))
	require.NoError(t, svc.HandleOrderEvent(ctx, event(t, "ev-10", orders.EventOrderPaid, "not an object")))
	require.NoError(t, svc.HandleOrderEvent(ctx, event(t, "ev-11", orders.EventOrderPaid, orders.OrderStatusChangedPayload{To: orders.StatusPaid})))
}

type failingCache struct{ err error }

func (f failingCache) Put(context.Context, redisx.StatusEntry) error { return f.err }

type memDedup struct{ seen map[string]bool }

func (d *memDedup) MarkSeen(_ context.Context, id string) (bool, error) {
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

func TestCacheFailureAllowsRetry(t *testing.T) {
	boom := errors.New("redis down")
	dedup := &memDedup{seen: map[string]bool{}}
	svc := &Service{Cache: failingCache{err: boom}, Dedup: dedup}

	msg := event(t, "ev-1", orders.EventOrderCreated, orders.OrderCreatedPayload{OrderID: "o-1", UserID: "alice"})
	require.ErrorIs(t, svc.HandleOrderEvent(context.Background(), msg), boom)
	require.False(t, dedup.seen["ev-1"], "failed event must be retried")
}

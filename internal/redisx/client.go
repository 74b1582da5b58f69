package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// StatusEntry is the cached projection of an order's status. UserID is kept so
// the read path can apply the owner check without touching Postgres.
type StatusEntry struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache stores StatusEntry values; Postgres stays the source of truth.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

// Get returns ok=false on a miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	raw, err := c.rdb.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	var e StatusEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		// entry rusak dianggap miss
		return StatusEntry{}, false, nil
	}
	return e, true, nil
}

// putNewest sets KEYS[1] unless the stored entry carries a newer rev.
// Revs are fixed-width UTC timestamps, so string order is time order.
var putNewest = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and type(doc.rev) == 'string' and doc.rev > ARGV[2] then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

const revLayout = "20060102T150405.000000000"

type storedEntry struct {
	StatusEntry
	Rev string `json:"rev"`
}

// Put writes e unless the cached entry is newer, so replayed events and late
// read-through writes cannot roll a status back. The compare and the write run
// as one script on the server.
func (c *StatusCache) Put(ctx context.Context, e StatusEntry) error {
	rev := e.UpdatedAt.UTC().Format(revLayout)
	b, err := json.Marshal(storedEntry{StatusEntry: e, Rev: rev})
	if err != nil {
		return fmt.Errorf("encode status entry: %w", err)
	}
	return putNewest.Run(ctx, c.rdb, []string{OrderStatusKey(e.OrderID)}, b, rev, c.ttl.Milliseconds()).Err()
}

// Dedup remembers processed event ids per consumer.
type Dedup struct {
	rdb      redis.Cmdable
	consumer string
	ttl      time.Duration
}

func NewDedup(rdb redis.Cmdable, consumer string) *Dedup {
	return &Dedup{rdb: rdb, consumer: consumer, ttl: TTLDedup}
}

// MarkSeen returns true the first time eventID is seen.
func (d *Dedup) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(d.consumer, eventID), "1", d.ttl).Result()
}

// Forget undoes MarkSeen so a failed event can be retried.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, DedupKey(d.consumer, eventID)).Err()
}

package orders

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
	"github.com/ariefcatur/go-orders-inventory/internal/keylock"
	"github.com/ariefcatur/go-orders-inventory/internal/outbox"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps orders in process. Product rows and order rows are locked
// per key for the whole transaction, the same way Repo relies on FOR UPDATE.
type MemoryStore struct {
	Catalog *inventory.MemoryCatalog
	Outbox  *outbox.Memory

	mu     sync.RWMutex
	orders map[string]Order
	users  map[string]struct{}
	locks  *keylock.Set
}

func NewMemoryStore(catalog *inventory.MemoryCatalog, userIDs ...string) *MemoryStore {
	if catalog == nil {
		catalog = inventory.NewMemoryCatalog()
	}
	s := &MemoryStore{
		Catalog: catalog,
		Outbox:  outbox.NewMemory(),
		orders:  make(map[string]Order),
		users:   make(map[string]struct{}),
		locks:   keylock.New(),
	}
	for _, id := range userIDs {
		s.users[id] = struct{}{}
	}
	return s
}

func (s *MemoryStore) AddUser(id string) {
	s.mu.Lock()
	s.users[id] = struct{}{}
	s.mu.Unlock()
}

func (s *MemoryStore) UserExists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, errNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) ListOrdersByUser(_ context.Context, f ListFilter) ([]Order, int, error) {
	s.mu.RLock()
	var matched []Order
	for _, o := range s.orders {
		if o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	s.mu.RUnlock()

	// terbaru dulu, sama seperti Repo
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if f.Offset >= total {
		return []Order{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	out := make([]Order, 0, end-f.Offset)
	for _, o := range matched[f.Offset:end] {
		c := cloneOrder(o)
		c.Lines = nil
		out = append(out, c)
	}
	return out, total, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		s:      s,
		ledger: s.Catalog.Begin(),
		held:   make(map[string]func()),
		staged: make(map[string]Order),
	}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	// timeout sebelum commit -> rollback penuh
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	s      *MemoryStore
	ledger *inventory.MemoryTx
	held   map[string]func()
	staged map[string]Order
	events []outbox.Message
}

func (t *memTx) Ledger() inventory.Ledger { return t.ledger }

func (t *memTx) lockOrder(ctx context.Context, id string) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	unlock, err := t.s.locks.Lock(ctx, "order:"+id)
	if err != nil {
		return err
	}
	t.held[id] = unlock
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o Order) error {
	if err := t.lockOrder(ctx, o.ID); err != nil {
		return err
	}
	t.s.mu.RLock()
	_, exists := t.s.orders[o.ID]
	t.s.mu.RUnlock()
	if _, staged := t.staged[o.ID]; exists || staged {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.staged[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID string) (Order, error) {
	if err := t.lockOrder(ctx, orderID); err != nil {
		return Order{}, err
	}
	if o, ok := t.staged[orderID]; ok {
		return cloneOrder(o), nil
	}
	t.s.mu.RLock()
	o, ok := t.s.orders[orderID]
	t.s.mu.RUnlock()
	if !ok {
		return Order{}, errNotFound
	}
	return cloneOrder(o), nil
}

func (t *memTx) UpdateStatus(ctx context.Context, orderID string, from, to Status, at time.Time) error {
	o, err := t.LockOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != from {
		return errStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	t.staged[orderID] = o
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, m outbox.Message) error {
	t.events = append(t.events, m)
	return nil
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	for id, o := range t.staged {
		t.s.orders[id] = o
	}
	t.s.mu.Unlock()
	t.s.Outbox.Append(t.events...)
	t.ledger.Commit()
	t.release()
}

func (t *memTx) rollback() {
	t.ledger.Rollback()
	t.release()
}

func (t *memTx) release() {
	for id, unlock := range t.held {
		unlock()
		delete(t.held, id)
	}
}

func cloneOrder(o Order) Order {
	o.Lines = append([]OrderLine(nil), o.Lines...)
	return o
}

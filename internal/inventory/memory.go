package inventory

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-orders-inventory/internal/keylock"
	"sort"
	"sync"
)

// MemoryCatalog is an in-process product table. Stock changes go through
// MemoryTx, which holds the product's key lock until Commit or Rollback.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]Product
	locks    *keylock.Set
}

func NewMemoryCatalog(products ...Product) *MemoryCatalog {
	c := &MemoryCatalog{
		products: make(map[string]Product, len(products)),
		locks:    keylock.New(),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *MemoryCatalog) Put(p Product) {
	c.mu.Lock()
	c.products[p.ID] = p
	c.mu.Unlock()
}

func (c *MemoryCatalog) Get(id string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

func (c *MemoryCatalog) ListOrderable(_ context.Context) ([]Product, error) {
	c.mu.RLock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		if p.Orderable() {
			out = append(out, p)
		}
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *MemoryCatalog) Begin() *MemoryTx {
	return &MemoryTx{c: c, held: make(map[string]func()), staged: make(map[string]int)}
}

// MemoryTx stages stock deltas per product. Readers of the catalog see only
// committed stock; the staged delta is applied at Commit while the product
// lock is still held.
type MemoryTx struct {
	c      *MemoryCatalog
	held   map[string]func()
	staged map[string]int
	done   bool
}

func (t *MemoryTx) lock(ctx context.Context, id string) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	unlock, err := t.c.locks.Lock(ctx, "product:"+id)
	if err != nil {
		return err
	}
	t.held[id] = unlock
	return nil
}

// view returns the product as this tx sees it: committed stock plus own delta.
func (t *MemoryTx) view(productID string) (Product, bool) {
	p, ok := t.c.Get(productID)
	if !ok {
		return Product{}, false
	}
	p.Stock += t.staged[productID]
	return p, true
}

func (t *MemoryTx) Reserve(ctx context.Context, productID string, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, ErrInvalidQuantity
	}
	if err := t.lock(ctx, productID); err != nil {
		return Product{}, fmt.Errorf("lock product %s: %w", productID, err)
	}

	p, ok := t.view(productID)
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err := CheckReserve(p, qty); err != nil {
		return Product{}, fmt.Errorf("%w: %s", err, productID)
	}
	t.staged[productID] -= qty
	return p, nil
}

func (t *MemoryTx) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if err := t.lock(ctx, productID); err != nil {
		return fmt.Errorf("lock product %s: %w", productID, err)
	}

	if _, ok := t.view(productID); !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	t.staged[productID] += qty
	return nil
}

func (t *MemoryTx) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.c.mu.Lock()
	for id, delta := range t.staged {
		if p, ok := t.c.products[id]; ok {
			p.Stock += delta
			t.c.products[id] = p
		}
	}
	t.c.mu.Unlock()
	t.release()
}

func (t *MemoryTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.release()
}

func (t *MemoryTx) release() {
	for id, unlock := range t.held {
		unlock()
		delete(t.held, id)
	}
	clear(t.staged)
}

package orders

import (
	"context"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
	"github.com/ariefcatur/go-orders-inventory/internal/outbox"
	"time"
)

// Store is the persistence boundary of the order service. Repo (Postgres) and
// MemoryStore implement it.
type Store interface {
	// InTx runs fn in one transaction: commit when fn returns nil, full
	// rollback otherwise (including when ctx is cancelled first).
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	UserExists(ctx context.Context, userID string) (bool, error)
	// GetOrder returns the order with its lines, or errNotFound.
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrdersByUser(ctx context.Context, f ListFilter) ([]Order, int, error)
}

type ListFilter struct {
	UserID string
	Status Status // kosong = semua
	Limit  int
	Offset int
}

type Tx interface {
	Ledger() inventory.Ledger
	InsertOrder(ctx context.Context, o Order) error
	// LockOrder loads the order with its lines and holds its lock until the tx ends.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	// UpdateStatus moves the order from -> to, failing with errStatusConflict if it is no longer in from.
	UpdateStatus(ctx context.Context, orderID string, from, to Status, at time.Time) error
	AppendEvent(ctx context.Context, m outbox.Message) error
}

package inventory

import (
	"context"
	"errors"
	"time"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Product is the slice of the catalog entity the order flow reads and mutates.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Stock      int
	Status     ApprovalStatus
	DeletedAt  *time.Time
}

func (p Product) Deleted() bool { return p.DeletedAt != nil }

// Orderable reports whether the product may appear on a new order.
func (p Product) Orderable() bool {
	return !p.Deleted() && p.Status == ApprovalApproved
}

var (
	ErrProductNotFound     = errors.New("inventory: product not found")
	ErrProductNotOrderable = errors.New("inventory: product not orderable")
	ErrInsufficientStock   = errors.New("inventory: insufficient stock")
	ErrInvalidQuantity     = errors.New("inventory: quantity must be positive")
)

// Ledger mutates stock inside the caller's transaction. Implementations must
// make Reserve's check-and-decrement indivisible per product and keep the
// product locked until that transaction ends.
type Ledger interface {
	// Reserve returns the product as it was before the decrement, so the
	// caller can capture price and name.
	Reserve(ctx context.Context, productID string, qty int) (Product, error)
	// Release adds qty back with no upper bound check.
	Release(ctx context.Context, productID string, qty int) error
}

// CheckReserve applies the reservation rules to a locked product snapshot.
func CheckReserve(p Product, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !p.Orderable() {
		return ErrProductNotOrderable
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	return nil
}

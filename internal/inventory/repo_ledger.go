package inventory

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger runs stock mutations on an open pgx transaction.
type PGLedger struct{ Tx pgx.Tx }

// Reserve: lock baris product (FOR UPDATE) -> validasi -> kurangi stok.
// Lock dilepas saat transaksi pemanggil commit / rollback.
func (l *PGLedger) Reserve(ctx context.Context, productID string, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, ErrInvalidQuantity
	}

	var p Product
	var status string
	err := l.Tx.QueryRow(ctx, `
		SELECT id, name, price_cents, stock, status, deleted_at
		FROM products WHERE id=$1 FOR UPDATE`, productID,
	).Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &status, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return Product{}, fmt.Errorf("lock product %s: %w", productID, err)
	}
	p.Status = ApprovalStatus(status)

	if err := CheckReserve(p, qty); err != nil {
		return Product{}, fmt.Errorf("%w: %s", err, productID)
	}

	// guard kedua: kalau stok berubah di luar lock, update tidak kena baris
	ct, err := l.Tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now()
	                           WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return Product{}, fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return Product{}, fmt.Errorf("%w: %s", ErrInsufficientStock, productID)
	}
	return p, nil
}

func (l *PGLedger) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ct, err := l.Tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return fmt.Errorf("restore stock %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return nil
}

type Repo struct{ DB *pgxpool.Pool }

// ListOrderable returns the catalog view buyers can order from.
func (r *Repo) ListOrderable(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price_cents, stock, status
	                              FROM products
	                              WHERE status = 'APPROVED' AND deleted_at IS NULL
	                              ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &status); err != nil {
			return nil, err
		}
		p.Status = ApprovalStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

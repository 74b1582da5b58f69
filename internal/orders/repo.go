package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
	"github.com/ariefcatur/go-orders-inventory/internal/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	// rollback tetap dikirim walau ctx request sudah timeout
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) UserExists(ctx context.Context, userID string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, userID).Scan(&ok)
	return ok, err
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		SELECT id, user_id, status, total_cents, created_at, updated_at
		FROM orders WHERE id=$1`, orderID))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, r.DB, o.ID)
	return o, err
}

func (r *Repo) ListOrdersByUser(ctx context.Context, f ListFilter) ([]Order, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE user_id=$1 AND ($2 = '' OR status = $2)`, f.UserID, string(f.Status),
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, user_id, status, total_cents, created_at, updated_at
		FROM orders
		WHERE user_id=$1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, f.UserID, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Ledger() inventory.Ledger { return &inventory.PGLedger{Tx: t.tx} }

func (t *pgTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.UserID, string(o.Status), o.TotalCents, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	// insert items (satu round-trip lewat batch)
	b := &pgx.Batch{}
	for i, l := range o.Lines {
		b.Queue(`
			INSERT INTO order_items(id, order_id, position, product_id, product_name, price_cents, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID, o.ID, i, l.ProductID, l.ProductName, l.UnitPriceCents, l.Qty)
	}
	return t.tx.SendBatch(ctx, b).Close()
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `
		SELECT id, user_id, status, total_cents, created_at, updated_at
		FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return Order{}, err
	}
	o.Lines, err = loadLines(ctx, t.tx, o.ID)
	return o, err
}

func (t *pgTx) UpdateStatus(ctx context.Context, orderID string, from, to Status, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$3, updated_at=$4 WHERE id=$1 AND status=$2`,
		orderID, string(from), string(to), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return errStatusConflict
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, m outbox.Message) error {
	return outbox.Insert(ctx, t.tx, m)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, errNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = Status(status)
	return o, nil
}

func loadLines(ctx context.Context, q querier, orderID string) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, price_cents, quantity
		FROM order_items WHERE order_id=$1 ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.UnitPriceCents, &l.Qty); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

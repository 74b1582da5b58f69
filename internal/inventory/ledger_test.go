package inventory

import (
	"context"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"sync/atomic"
	"testing"
	"time"
)

func approved(id string, stock int) Product {
	return Product{ID: id, Name: "product " + id, PriceCents: 1500, Stock: stock, Status: ApprovalApproved}
}

func TestCheckReserve(t *testing.T) {
	deleted := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		p    Product
		qty  int
		want error
	}{
		{"ok", approved("p", 3), 3, nil},
		{"zero qty", approved("p", 3), 0, ErrInvalidQuantity},
		{"pending", Product{ID: "p", Stock: 5, Status: ApprovalPending}, 1, ErrProductNotOrderable},
		{"rejected", Product{ID: "p", Stock: 5, Status: ApprovalRejected}, 1, ErrProductNotOrderable},
		{"deleted", Product{ID: "p", Stock: 5, Status: ApprovalApproved, DeletedAt: &deleted}, 1, ErrProductNotOrderable},
		{"short", approved("p", 2), 3, ErrInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckReserve(tc.p, tc.qty)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMemoryTxReserveCommit(t *testing.T) {
	c := NewMemoryCatalog(approved("p-1", 5))
	ctx := context.Background()

	tx := c.Begin()
	before, err := tx.Reserve(ctx, "p-1", 2)
	require.NoError(t, err)
	require.Equal(t, 5, before.Stock)
	tx.Commit()

	p, _ := c.Get("p-1")
	require.Equal(t, 3, p.Stock)
}

func TestMemoryTxRollbackRestoresEveryMutation(t *testing.T) {
	c := NewMemoryCatalog(approved("p-1", 5), approved("p-2", 1))
	ctx := context.Background()

	tx := c.Begin()
	_, err := tx.Reserve(ctx, "p-1", 4)
	require.NoError(t, err)
	_, err = tx.Reserve(ctx, "p-2", 2)
	require.ErrorIs(t, err, ErrInsufficientStock)
	tx.Rollback()

	p1, _ := c.Get("p-1")
	p2, _ := c.Get("p-2")
	require.Equal(t, 5, p1.Stock)
	require.Equal(t, 1, p2.Stock)
}

func TestCatalogReadsSeeOnlyCommittedStock(t *testing.T) {
	c := NewMemoryCatalog(approved("p-1", 5))
	ctx := context.Background()

	tx := c.Begin()
	_, err := tx.Reserve(ctx, "p-1", 3)
	require.NoError(t, err)

	p, _ := c.Get("p-1")
	require.Equal(t, 5, p.Stock, "uncommitted reservation is invisible")
	listed, err := c.ListOrderable(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, listed[0].Stock)

	// the tx itself sees its own decrement
	_, err = tx.Reserve(ctx, "p-1", 3)
	require.ErrorIs(t, err, ErrInsufficientStock)
	tx.Commit()

	p, _ = c.Get("p-1")
	require.Equal(t, 2, p.Stock)

	rb := c.Begin()
	require.NoError(t, rb.Release(ctx, "p-1", 10))
	listed, err = c.ListOrderable(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, listed[0].Stock)
	rb.Rollback()

	p, _ = c.Get("p-1")
	require.Equal(t, 2, p.Stock)
}

func TestMemoryTxUnknownProduct(t *testing.T) {
	c := NewMemoryCatalog()
	tx := c.Begin()
	defer tx.Rollback()

	_, err := tx.Reserve(context.Background(), "nope", 1)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryTxSameProductTwiceInOneTx(t *testing.T) {
	c := NewMemoryCatalog(approved("p-1", 3))
	ctx := context.Background()

	tx := c.Begin()
	_, err := tx.Reserve(ctx, "p-1", 1)
	require.NoError(t, err)
	_, err = tx.Reserve(ctx, "p-1", 2)
	require.NoError(t, err)
	_, err = tx.Reserve(ctx, "p-1", 1)
	require.ErrorIs(t, err, ErrInsufficientStock)
	tx.Commit()

	p, _ := c.Get("p-1")
	require.Equal(t, 0, p.Stock)
}

func TestMemoryTxReleaseIncrements(t *testing.T) {
	c := NewMemoryCatalog(approved("p-1", 0))
	tx := c.Begin()
	require.NoError(t, tx.Release(context.Background(), "p-1", 4))
	tx.Commit()

	p, _ := c.Get("p-1")
	require.Equal(t, 4, p.Stock)
}

func TestMemoryTxConcurrentReservationsNeverOversell(t *testing.T) {
	const stock, callers = 10, 50
	c := NewMemoryCatalog(approved("hot", stock))

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			tx := c.Begin()
			if _, err := tx.Reserve(context.Background(), "hot", 1); err != nil {
				tx.Rollback()
				return nil
			}
			ok.Add(1)
			tx.Commit()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	p, _ := c.Get("hot")
	require.EqualValues(t, stock, ok.Load())
	require.Equal(t, 0, p.Stock)
}

func TestMemoryTxBlocksUntilHolderFinishes(t *testing.T) {
	c := NewMemoryCatalog(approved("p-1", 1))
	holder := c.Begin()
	_, err := holder.Reserve(context.Background(), "p-1", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waiter := c.Begin()
	_, err = waiter.Reserve(ctx, "p-1", 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	waiter.Rollback()

	holder.Rollback()
	retry := c.Begin()
	_, err = retry.Reserve(context.Background(), "p-1", 1)
	require.NoError(t, err)
	retry.Commit()
}

func TestListOrderableSkipsHiddenProducts(t *testing.T) {
	gone := time.Now()
	c := NewMemoryCatalog(
		approved("b", 1),
		approved("a", 1),
		Product{ID: "c", Name: "c", Status: ApprovalPending},
		Product{ID: "d", Name: "d", Status: ApprovalApproved, DeletedAt: &gone},
	)
	ps, err := c.ListOrderable(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.Equal(t, "a", ps[0].ID)
}

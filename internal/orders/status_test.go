package orders

import (
	"github.com/ariefcatur/go-orders-inventory/internal/auth"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestNext(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		want   Status
		ok     bool
	}{
		{StatusCreated, ActionPay, StatusPaid, true},
		{StatusCreated, ActionCancel, StatusCancelled, true},
		{StatusPaid, ActionComplete, StatusCompleted, true},
		{StatusCreated, ActionComplete, "", false},
		{StatusPaid, ActionPay, "", false},
		{StatusPaid, ActionCancel, "", false},
		{StatusCancelled, ActionPay, "", false},
		{StatusCancelled, ActionCancel, "", false},
		{StatusCompleted, ActionCancel, "", false},
		{StatusCompleted, ActionComplete, "", false},
		{StatusCreated, Action("refund"), "", false},
	}
	for _, tc := range cases {
		got, ok := Next(tc.from, tc.action)
		require.Equal(t, tc.ok, ok, "%s -> %s", tc.from, tc.action)
		require.Equal(t, tc.want, got)
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StatusCreated, StatusPaid))
	require.True(t, CanTransition(StatusPaid, StatusCompleted))
	require.False(t, CanTransition(StatusCreated, StatusCompleted))
	require.False(t, CanTransition(StatusCancelled, StatusCreated))
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusPaid.Terminal())
}

func TestParseStatusFilter(t *testing.T) {
	s, ok := ParseStatusFilter(" paid ")
	require.True(t, ok)
	require.Equal(t, StatusPaid, s)

	for _, raw := range []string{"", "shipped", "ALL"} {
		s, ok := ParseStatusFilter(raw)
		require.False(t, ok, raw)
		require.Empty(t, s)
	}
}

func TestCanAccess(t *testing.T) {
	o := Order{ID: "o-1", UserID: "alice"}

	require.True(t, CanAccess(o, auth.Principal{UserID: "alice", Role: auth.RoleUser}))
	require.True(t, CanAccess(o, auth.Principal{UserID: "ops", Role: auth.RoleAdmin}))
	require.False(t, CanAccess(o, auth.Principal{UserID: "bob", Role: auth.RoleUser}))
	require.False(t, CanAccess(o, auth.Principal{}))
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindInsufficientStock, "insufficient stock for product: p-1", nil)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.NotErrorIs(t, err, ErrProductNotFound)
	require.Equal(t, "insufficient stock for product: p-1", PublicMessage(err))
	require.Equal(t, KindInternal, KindOf(nil))
}

package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-orders-inventory/internal/auth"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/ariefcatur/go-orders-inventory/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

type apiFixture struct {
	router http.Handler
	store  *orders.MemoryStore
	cache  *redisx.StatusCache
	authn  *auth.Authenticator
}

func newAPI(t *testing.T, withCache bool) apiFixture {
	t.Helper()
	catalog := inventory.NewMemoryCatalog(
		inventory.Product{ID: "p-1", Name: "Keyboard", PriceCents: 4500, Stock: 3, Status: inventory.ApprovalApproved},
		inventory.Product{ID: "p-2", Name: "Mouse", PriceCents: 1500, Stock: 1, Status: inventory.ApprovalApproved},
		inventory.Product{ID: "p-3", Name: "Draft", PriceCents: 100, Stock: 10, Status: inventory.ApprovalPending},
	)
	store := orders.NewMemoryStore(catalog, "alice", "bob", "root")
	svc, err := orders.NewService(orders.ServiceDeps{Store: store})
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(testSecret)
	require.NoError(t, err)

	var cache *redisx.StatusCache
	oh := &OrdersHandler{Service: svc}
	if withCache {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		cache = redisx.NewStatusCache(rdb)
		oh.Cache = cache
	}

	router := NewRouter(nil, 5*time.Second)
	router.Group(func(r chi.Router) {
		r.Use(RequireAuth(authn))
		oh.Register(r)
		(&ProductsHandler{Catalog: catalog}).Register(r)
	})
	return apiFixture{router: router, store: store, cache: cache, authn: authn}
}

func (f apiFixture) token(t *testing.T, userID string, role auth.Role) string {
	t.Helper()
	tok, err := f.authn.Sign(auth.Principal{UserID: userID, Role: role}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return tok
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateAndFetchOrder(t *testing.T) {
	f := newAPI(t, false)
	alice := f.token(t, "alice", auth.RoleUser)

	rec := f.do(t, http.MethodPost, "/orders", alice, map[string]any{
		"items": []map[string]any{{"product_id": "p-1", "quantity": 2}, {"product_id": "p-2", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sum := decode[orders.OrderSummary](t, rec)
	require.Equal(t, orders.StatusCreated, sum.Status)
	require.EqualValues(t, 2*4500+1500, sum.TotalCents)
	require.Equal(t, "/orders/"+sum.ID, rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/orders/"+sum.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[orders.OrderDetail](t, rec)
	require.Len(t, detail.Items, 2)
	require.Equal(t, "Keyboard", detail.Items[0].ProductName)

	rec = f.do(t, http.MethodGet, "/orders/"+sum.ID, f.token(t, "bob", auth.RoleUser), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decode[ErrorBody](t, rec)
	require.Equal(t, "ORDER_ACCESS_DENIED", body.Code)
	require.Equal(t, http.StatusForbidden, body.Status)
	require.NotEmpty(t, body.RequestID)

	rec = f.do(t, http.MethodGet, "/orders/"+sum.ID, f.token(t, "root", auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrderErrors(t *testing.T) {
	f := newAPI(t, false)
	alice := f.token(t, "alice", auth.RoleUser)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"empty items", map[string]any{"items": []any{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", map[string]any{"items": []map[string]any{{"product_id": "p-1", "quantity": 0}}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not json", "nope", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown product", map[string]any{"items": []map[string]any{{"product_id": "zzz", "quantity": 1}}}, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"not approved", map[string]any{"items": []map[string]any{{"product_id": "p-3", "quantity": 1}}}, http.StatusUnprocessableEntity, "PRODUCT_NOT_ORDERABLE"},
		{"too many", map[string]any{"items": []map[string]any{{"product_id": "p-2", "quantity": 2}}}, http.StatusConflict, "INSUFFICIENT_STOCK"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/orders", alice, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decode[ErrorBody](t, rec).Code)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	f := newAPI(t, false)

	for _, path := range []string{"/orders/my", "/products", "/orders/x"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "UNAUTHORIZED", decode[ErrorBody](t, rec).Code)
	}

	other, err := auth.NewAuthenticator("other-secret")
	require.NoError(t, err)
	forged, err := other.Sign(auth.Principal{UserID: "alice"}, jwt.RegisteredClaims{})
	require.NoError(t, err)
	rec := f.do(t, http.MethodGet, "/orders/my", forged, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTransitionsOverHTTP(t *testing.T) {
	f := newAPI(t, false)
	alice := f.token(t, "alice", auth.RoleUser)

	rec := f.do(t, http.MethodPost, "/orders", alice, CreateOrderReq{Items: []orders.LineInput{{ProductID: "p-1", Qty: 3}}})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[orders.OrderSummary](t, rec).ID

	rec = f.do(t, http.MethodPatch, "/orders/"+id+"/complete", alice, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_ORDER_STATUS", decode[ErrorBody](t, rec).Code)

	rec = f.do(t, http.MethodPatch, "/orders/"+id+"/cancel", f.token(t, "bob", auth.RoleUser), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, "/orders/"+id+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, orders.StatusCancelled, decode[orders.OrderSummary](t, rec).Status)

	p, ok := f.store.Catalog.Get("p-1")
	require.True(t, ok)
	require.Equal(t, 3, p.Stock)

	rec = f.do(t, http.MethodPatch, "/orders/"+id+"/pay", alice, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPatch, "/orders/missing/pay", alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "ORDER_NOT_FOUND", decode[ErrorBody](t, rec).Code)
}

func TestListMyOrdersOverHTTP(t *testing.T) {
	f := newAPI(t, false)
	alice := f.token(t, "alice", auth.RoleUser)

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/orders", alice, CreateOrderReq{Items: []orders.LineInput{{ProductID: "p-1", Qty: 1}}})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/orders/my?page=0&size=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[orders.Page[orders.OrderSummary]](t, rec)
	require.Len(t, page.Items, 2)
	require.Equal(t, 3, page.TotalElements)
	require.Equal(t, 2, page.TotalPages)

	rec = f.do(t, http.MethodGet, "/orders/my?status=PAID", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, decode[orders.Page[orders.OrderSummary]](t, rec).TotalElements)

	rec = f.do(t, http.MethodGet, "/orders/my", f.token(t, "bob", auth.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[orders.Page[orders.OrderSummary]](t, rec).Items)

	for _, q := range []string{"page=x", "size=500", "page=-1"} {
		rec = f.do(t, http.MethodGet, "/orders/my?"+q, alice, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestOrderStatusUsesCache(t *testing.T) {
	f := newAPI(t, true)
	alice := f.token(t, "alice", auth.RoleUser)
	ctx := context.Background()

	rec := f.do(t, http.MethodPost, "/orders", alice, CreateOrderReq{Items: []orders.LineInput{{ProductID: "p-2", Qty: 1}}})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[orders.OrderSummary](t, rec).ID

	rec = f.do(t, http.MethodGet, "/orders/"+id+"/status", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[OrderStatusResp](t, rec)
	require.Equal(t, "CREATED", first.Status)
	require.Equal(t, "store", first.Source)

	rec = f.do(t, http.MethodGet, "/orders/"+id+"/status", alice, nil)
	require.Equal(t, "cache", decode[OrderStatusResp](t, rec).Source)

	rec = f.do(t, http.MethodGet, "/orders/"+id+"/status", f.token(t, "bob", auth.RoleUser), nil)
	require.Equal(t, http.StatusForbidden, rec.Code, "cached entries are access-checked too")

	rec = f.do(t, http.MethodPatch, "/orders/"+id+"/pay", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entry, hit, err := f.cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "PAID", entry.Status, "transition writes the new status through")

	// a read-through that loaded CREATED before the payment lands late
	require.NoError(t, f.cache.Put(ctx, redisx.StatusEntry{OrderID: id, UserID: "alice", Status: "CREATED", UpdatedAt: first.UpdatedAt}))

	rec = f.do(t, http.MethodGet, "/orders/"+id+"/status", alice, nil)
	got := decode[OrderStatusResp](t, rec)
	require.Equal(t, "PAID", got.Status)
	require.Equal(t, "cache", got.Source)
}

func TestListProducts(t *testing.T) {
	f := newAPI(t, false)

	rec := f.do(t, http.MethodGet, "/products", f.token(t, "alice", auth.RoleUser), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ps := decode[[]ProductView](t, rec)
	require.Len(t, ps, 2)
	require.Equal(t, "Keyboard", ps[0].Name)
	require.EqualValues(t, 4500, ps[0].PriceCents)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusConflict, StatusFor(orders.KindInsufficientStock))
	require.Equal(t, http.StatusInternalServerError, StatusFor(orders.Kind("SOMETHING_ELSE")))
}

func TestRecovererWritesEnvelope(t *testing.T) {
	router := NewRouter(nil, time.Second)
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[ErrorBody](t, rec)
	require.Equal(t, "INTERNAL_SERVER_ERROR", body.Code)
	require.Equal(t, "internal server error", body.Message)
}

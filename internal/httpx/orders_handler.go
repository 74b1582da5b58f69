package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-orders-inventory/internal/auth"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/ariefcatur/go-orders-inventory/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"io"
	"net/http"
	"strconv"
	"time"
)

const maxBodyBytes = 1 << 20

type OrderService interface {
	CreateOrder(ctx context.Context, p auth.Principal, lines []orders.LineInput) (orders.OrderSummary, error)
	PayOrder(ctx context.Context, p auth.Principal, orderID string) (orders.OrderSummary, error)
	CancelOrder(ctx context.Context, p auth.Principal, orderID string) (orders.OrderSummary, error)
	CompleteOrder(ctx context.Context, p auth.Principal, orderID string) (orders.OrderSummary, error)
	GetOrder(ctx context.Context, p auth.Principal, orderID string) (orders.OrderDetail, error)
	ListMyOrders(ctx context.Context, p auth.Principal, q orders.ListQuery) (orders.Page[orders.OrderSummary], error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	// Put must keep the newest entry when writers race.
	Put(ctx context.Context, e redisx.StatusEntry) error
}

type OrdersHandler struct {
	Service OrderService
	Cache   StatusCache // opsional; nil = selalu baca dari service
	Logger  *zap.Logger
}

type CreateOrderReq struct {
	Items []orders.LineInput `json:"items"`
}

type OrderStatusResp struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`
}

// Register mounts the order routes; r must already enforce authentication.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/my", h.listMyOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Patch("/orders/{id}/pay", h.transition(orders.ActionPay))
	r.Patch("/orders/{id}/cancel", h.transition(orders.ActionCancel))
	r.Patch("/orders/{id}/complete", h.transition(orders.ActionComplete))
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	var req CreateOrderReq
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, orders.KindValidation, "invalid json body")
		return
	}

	sum, err := h.Service.CreateOrder(r.Context(), p, req.Items)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	w.Header().Set("Location", "/orders/"+sum.ID)
	writeJSON(w, http.StatusCreated, sum)
}

func (h *OrdersHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		writeError(w, r, orders.KindValidation, "page must be an integer")
		return
	}
	size, err := intParam(q.Get("size"), orders.DefaultPageSize)
	if err != nil {
		writeError(w, r, orders.KindValidation, "size must be an integer")
		return
	}

	res, err := h.Service.ListMyOrders(r.Context(), p, orders.ListQuery{Status: q.Get("status"), Page: page, Size: size})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	detail, err := h.Service.GetOrder(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	ctx := r.Context()
	orderID := chi.URLParam(r, "id")

	// 1) coba cache
	if h.Cache != nil {
		e, hit, err := h.Cache.Get(ctx, orderID)
		if err != nil {
			h.log(ctx).Warn("status cache read failed", zap.String("order_id", orderID), zap.Error(err))
		}
		if hit {
			if !orders.CanAccess(orders.Order{ID: e.OrderID, UserID: e.UserID}, p) {
				writeOrderError(w, r, orders.ErrOrderAccessDenied)
				return
			}
			writeJSON(w, http.StatusOK, OrderStatusResp{OrderID: orderID, Status: e.Status, UpdatedAt: e.UpdatedAt, Source: "cache"})
			return
		}
	}

	// 2) fallback ke service (DB)
	detail, err := h.Service.GetOrder(ctx, p, orderID)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	h.remember(ctx, detail.OrderSummary)
	writeJSON(w, http.StatusOK, OrderStatusResp{OrderID: detail.ID, Status: string(detail.Status), UpdatedAt: detail.UpdatedAt, Source: "store"})
}

func (h *OrdersHandler) transition(action orders.Action) http.HandlerFunc {
	run := map[orders.Action]func(context.Context, auth.Principal, string) (orders.OrderSummary, error){
		orders.ActionPay:      h.Service.PayOrder,
		orders.ActionCancel:   h.Service.CancelOrder,
		orders.ActionComplete: h.Service.CompleteOrder,
	}[action]

	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, r)
			return
		}
		sum, err := run(r.Context(), p, chi.URLParam(r, "id"))
		if err != nil {
			writeOrderError(w, r, err)
			return
		}
		// write-through; an older read-through write racing this one loses
		h.remember(r.Context(), sum)
		writeJSON(w, http.StatusOK, sum)
	}
}

func (h *OrdersHandler) remember(ctx context.Context, sum orders.OrderSummary) {
	if h.Cache == nil {
		return
	}
	err := h.Cache.Put(ctx, redisx.StatusEntry{OrderID: sum.ID, UserID: sum.UserID, Status: string(sum.Status), UpdatedAt: sum.UpdatedAt})
	if err != nil {
		h.log(ctx).Warn("status cache write failed", zap.String("order_id", sum.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) log(ctx context.Context) *zap.Logger {
	return observability.FromContext(ctx, h.Logger)
}

var errNotInt = errors.New("not an integer")

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errNotInt
	}
	return n, nil
}

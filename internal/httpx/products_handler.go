package httpx

import (
	"context"
	"github.com/ariefcatur/go-orders-inventory/internal/inventory"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
)

type ProductCatalog interface {
	ListOrderable(ctx context.Context) ([]inventory.Product, error)
}

type ProductsHandler struct {
	Catalog ProductCatalog
	Logger  *zap.Logger
}

type ProductView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price"`
	Stock      int    `json:"stock"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Catalog.ListOrderable(r.Context())
	if err != nil {
		observability.FromContext(r.Context(), h.Logger).Error("list products failed", zap.Error(err))
		writeError(w, r, orders.KindInternal, orders.PublicMessage(err))
		return
	}
	out := make([]ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, ProductView{ID: p.ID, Name: p.Name, PriceCents: p.PriceCents, Stock: p.Stock})
	}
	writeJSON(w, http.StatusOK, out)
}

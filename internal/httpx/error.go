package httpx

import (
	"encoding/json"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/ariefcatur/go-orders-inventory/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"runtime/debug"
)

// ErrorBody is the JSON envelope every failed request returns.
type ErrorBody struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

var statusByKind = map[orders.Kind]int{
	orders.KindValidation:          http.StatusBadRequest,
	orders.KindUnauthorized:        http.StatusUnauthorized,
	orders.KindOrderAccessDenied:   http.StatusForbidden,
	orders.KindOrderNotFound:       http.StatusNotFound,
	orders.KindProductNotFound:     http.StatusNotFound,
	orders.KindProductNotOrderable: http.StatusUnprocessableEntity,
	orders.KindInsufficientStock:   http.StatusConflict,
	orders.KindInvalidOrderStatus:  http.StatusConflict,
	orders.KindInternal:            http.StatusInternalServerError,
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind orders.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, kind orders.Kind, message string) {
	status := StatusFor(kind)
	writeJSON(w, status, ErrorBody{
		Code:      string(kind),
		Message:   message,
		Status:    status,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeOrderError renders err from the order service; internal details never leave the process.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, orders.KindOf(err), orders.PublicMessage(err))
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, orders.KindUnauthorized, "missing or invalid bearer token")
}

// Recoverer turns a panic into a logged 500 with the standard envelope.
func Recoverer(fallback *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.FromContext(r.Context(), fallback).Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				writeError(w, r, orders.KindInternal, orders.PublicMessage(nil))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package httpx

import (
	"github.com/ariefcatur/go-orders-inventory/internal/auth"
	"github.com/ariefcatur/go-orders-inventory/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"net/http"
	"time"
)

func NewRouter(logger *zap.Logger, timeout time.Duration) *chi.Mux {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, observability.RequestLogger(logger), Recoverer(logger))
	r.Use(middleware.Timeout(timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Code: "NOT_FOUND", Message: "route not found", Status: http.StatusNotFound, RequestID: middleware.GetReqID(r.Context())})
	})
	return r
}

// RequireAuth verifies the bearer token and tags the request logger with the caller.
func RequireAuth(a *auth.Authenticator) func(http.Handler) http.Handler {
	verify := a.Require(unauthorized)
	return func(next http.Handler) http.Handler {
		return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if p, ok := auth.PrincipalFromContext(ctx); ok {
				logger := observability.FromContext(ctx, nil).With(zap.String("user_id", p.UserID))
				ctx = observability.WithLogger(ctx, logger)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
	}
}

package costinghttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-costing/internal/platform/httpx"
)

// DefaultRateLimit is the per-client request budget per minute.
const DefaultRateLimit = 30

// MountRoutes registers costing endpoints onto the router. limit caps
// requests per minute per tenant and client address.
func (h *Handler) MountRoutes(r chi.Router, limit int) {
	if h == nil {
		return
	}
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	limiter := httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "report rate limit exceeded")
		}),
	)

	r.Route("/tenants/{tenantID}/consumption-report", func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/", h.handleReport)
		gr.Post("/cache/invalidate", h.handleInvalidate)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "tenant:" + chi.URLParam(r, "tenantID") + ":ip:" + key, nil
}

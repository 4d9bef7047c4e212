package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/skapxd/image-optimization-service/internal/config"
	"github.com/skapxd/image-optimization-service/internal/transport/handler"
)

// rateLimit applies a process-wide token bucket to the optimization routes.
func rateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func NewRouter(h *handler.Handler, cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Route("/image-optimization", func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimit))

		r.Post("/optimize", h.Optimize)
		r.Post("/batch-optimize", h.BatchOptimize)
		r.Post("/blur-placeholder", h.BlurPlaceholder)
		r.Get("/download/{filename}", h.Download)
		r.Get("/status/{id}", h.Status)
	})

	r.Get("/image-optimization-sse/subscribe/{id}", h.Subscribe)

	return r
}

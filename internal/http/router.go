package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/http/handlers"
	"github.com/phoneotp/server/internal/metrics"
	"github.com/phoneotp/server/internal/middleware"
	"github.com/phoneotp/server/internal/ratelimit"
	"github.com/phoneotp/server/internal/repo"
)

// RouterDeps groups everything NewRouter wires together
type RouterDeps struct {
	Auth          *handlers.AuthHandler
	Tokens        middleware.TokenVerifier
	Users         repo.UserRepo
	SendLimiter   ratelimit.Limiter
	VerifyLimiter ratelimit.Limiter
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	AllowedOrigin []string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(d.Log, d.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/auth/phone", func(r chi.Router) {
		r.With(middleware.RateLimitMiddleware(d.SendLimiter, middleware.GetIPKey, d.Log)).
			Post("/send-code", d.Auth.HandleSendCode)
		r.With(middleware.RateLimitMiddleware(d.VerifyLimiter, middleware.GetIPKey, d.Log)).
			Post("/verify-code", d.Auth.HandleVerifyCode)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Tokens, d.Users))
		r.Get("/me", d.Auth.HandleMe)
	})

	return r
}

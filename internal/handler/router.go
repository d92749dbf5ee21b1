package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/slot-booking/internal/auth"
	"github.com/Shivanand-hulikatti/slot-booking/internal/service"
)

const loginAttemptsPerMin = 10

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Bookings         *service.BookingService
	Auth             *auth.Authenticator
	Health           Pinger
	CreateRatePerMin int
	CORSOrigins      []string
}

// NewRouter builds the HTTP surface of the service.
func NewRouter(cfg RouterConfig) http.Handler {
	bookings := NewBookingHandler(cfg.Bookings)
	admin := NewAdminHandler(cfg.Auth)
	requireAdmin := RequireAdmin(cfg.Auth)
	limiter := NewRateLimiter(cfg.CreateRatePerMin)
	loginLimiter := NewRateLimiter(loginAttemptsPerMin)

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger)
	r.Use(CORS(cfg.CORSOrigins))

	r.Get("/health", HealthCheck(cfg.Health))

	r.Route("/api", func(r chi.Router) {
		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", bookings.List)
			r.With(limiter.Limit).Post("/", bookings.Create)
			r.Get("/{id}", bookings.Get)
			r.Put("/{id}", bookings.Update)
			r.With(requireAdmin).Delete("/{id}", bookings.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(loginLimiter.Limit).Post("/login", admin.Login)
			r.With(requireAdmin).Post("/reconcile", bookings.Reconcile)
		})
	})

	return r
}

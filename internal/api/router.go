package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicbook/clinic-booking/internal/booking"
	"github.com/clinicbook/clinic-booking/internal/payment"
	"github.com/clinicbook/clinic-booking/internal/schedule"
)

type RouterConfig struct {
	Bookings  *booking.Service
	Schedules *schedule.Service
	Payments  *payment.Service // nil when the gateway is not configured
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking endpoints
	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings", listBookingsHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Put("/bookings/{id}", updateBookingHandler(cfg.Bookings))

	// Schedule endpoints
	r.Get("/doctors/{id}/schedule", getScheduleHandler(cfg.Schedules))
	r.Put("/doctors/{id}/schedule", putScheduleHandler(cfg.Schedules))

	// Payment endpoints
	r.Post("/payments/create", createPaymentHandler(cfg.Payments))
	r.Get("/payments/return", paymentReturnHandler(cfg.Payments))

	return r
}

package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/bus-reservations/internal/observability"
	"github.com/robertarktes/bus-reservations/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	r.Route("/v1/trips/{tripID}/seats", func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl))
		r.Post("/{seatCode}/hold", h.AcquireHold)
		r.Delete("/{seatCode}/hold", h.ReleaseHold)
		r.Get("/held", h.HeldSeats)
	})

	r.Route("/v1/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Put("/{id}", h.UpdateBooking)
		r.Post("/{id}/cancel", h.CancelBooking)
		r.Post("/{id}/confirm", h.ConfirmBooking)
		r.Post("/{id}/refund", h.RefundBooking)
		r.Post("/{id}/payment", h.InitiatePayment)
		r.Get("/code/{code}", h.BookingByCode)
	})

	r.Post("/v1/payments/webhook", h.PaymentWebhook)
	r.Post("/v1/payments/{orderCode}/verify", h.VerifyPayment)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

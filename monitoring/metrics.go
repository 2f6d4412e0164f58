package monitoring

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway result callbacks by outcome",
		},
		[]string{"outcome"},
	)

	PaymentsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Payment requests written to the ledger",
		},
	)

	CommissionCreditedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_credited_total",
			Help: "Commission credited to referrers, in rubles",
		},
		[]string{"tier"},
	)

	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_registrations_total",
			Help: "New users by assigned referral tier",
		},
		[]string{"tier"},
	)
)

// Middleware records request counts and latency per route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}
		HttpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		ResponseTimeHistogram.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

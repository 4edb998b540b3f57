package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderengine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orderengine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderengine_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	reservationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderengine_reservation_failures_total",
			Help: "Checkouts rejected because stock or a flash sale pool ran out",
		},
		[]string{"pool"},
	)

	duplicateConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderengine_duplicate_payment_confirmations_total",
			Help: "Payment confirmations that found the order already paid",
		},
		[]string{"source"},
	)
)

// RecordOrderOperation counts one checkout, confirmation, cancellation or tracking append
func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

// RecordReservationFailure counts a lost stock race
func RecordReservationFailure(flashSale bool) {
	pool := "product"
	if flashSale {
		pool = "flash_sale"
	}
	reservationFailures.WithLabelValues(pool).Inc()
}

// RecordDuplicateConfirmation counts an idempotent no-op confirmation
func RecordDuplicateConfirmation(source string) {
	duplicateConfirmations.WithLabelValues(source).Inc()
}

package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Total number of checkout attempts received",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders committed",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of failed checkout attempts",
	}, []string{"reason"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_rate_limited_total",
		Help: "Total number of checkout attempts rejected by the rate limiter",
	})

	InventoryConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_conflicts_total",
		Help: "Total number of checkouts aborted on the capacity check",
	})

	StkPushTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stk_push_total",
		Help: "Total number of STK push initiations",
	})

	StkPushFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stk_push_failed_total",
		Help: "Total number of failed STK push initiations",
	})

	PaymentCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of payments confirmed by the provider",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of payments declined or expired",
	})

	PaymentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_retries_total",
		Help: "Total number of manual payment retries",
	})

	StalePaymentsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stale_payments_swept_total",
		Help: "Total number of stale pending transactions resolved by the sweep",
	})

	CheckoutCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_commit_latency_seconds",
		Help:    "Latency of the atomic checkout commit",
		Buckets: prometheus.DefBuckets,
	})

	StkPushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stk_push_latency_seconds",
		Help:    "Latency of STK push initiation",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

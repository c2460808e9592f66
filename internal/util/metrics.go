package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PriceQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_quotes_total",
		Help: "Total number of price quotes computed",
	}, []string{"method"})

	PriceQuoteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "price_quote_latency_seconds",
		Help:    "Latency of price quotes including reference lookups",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderTransactionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_transaction_latency_seconds",
		Help:    "Latency of the order creation transaction",
		Buckets: prometheus.DefBuckets,
	})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotent_replays_total",
		Help: "Total number of order requests answered from an earlier idempotency key",
	})

	PaymentCapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_captures_total",
		Help: "Total number of payment capture attempts by outcome",
	}, []string{"outcome"})

	PaymentGatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of committed status transitions",
	}, []string{"status_type", "status"})

	StatusTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_rejected_total",
		Help: "Total number of status transitions rejected by the state machine",
	}, []string{"status_type"})

	AssetUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_uploads_total",
		Help: "Total number of asset uploads by outcome",
	}, []string{"outcome"})

	AssetUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asset_upload_bytes",
		Help:    "Size of accepted uploads",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	EventsPublishFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of domain events that could not be published",
	}, []string{"event_type"})

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

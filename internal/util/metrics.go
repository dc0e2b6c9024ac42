package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_orders_created_total",
		Help: "Total number of orders created",
	}, []string{"payment_method"})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_orders_completed_total",
		Help: "Total number of orders fulfilled",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	DiscountsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_discounts_applied_total",
		Help: "Discounts granted at checkout by source",
	}, []string{"source"})

	PromoRedemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_promo_redemptions_total",
		Help: "Total number of reward codes redeemed",
	})

	DeliveryCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_delivery_commands_total",
		Help: "In-game commands by outcome",
	}, []string{"status"})

	WebhookLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_plugin_webhook_latency_seconds",
		Help:    "Latency of game-server plugin webhook calls",
		Buckets: prometheus.DefBuckets,
	})

	FulfillmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_fulfillment_latency_seconds",
		Help:    "Latency of order fulfillment",
		Buckets: prometheus.DefBuckets,
	})

	CurrencyConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_currency_conversions_total",
		Help: "Currency conversions by outcome",
	}, []string{"outcome"})

	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_gateway_calls_total",
		Help: "Payment gateway calls by operation and outcome",
	}, []string{"operation", "outcome"})

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

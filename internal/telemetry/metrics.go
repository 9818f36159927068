package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики движка.
var (
	// ClaimsWon — выигранные аренды автоматизаций.
	ClaimsWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_claims_won_total",
		Help: "Automations successfully claimed by this instance.",
	})

	// ClaimsLost — проигранные гонки за аренду (ожидаемое поведение
	// при нескольких экземплярах движка).
	ClaimsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailflow_claims_lost_total",
		Help: "Claim races lost to another instance.",
	})

	// StepsExecuted — выполненные шаги по типу и исходу.
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_steps_executed_total",
		Help: "Flow steps executed, by step type and outcome.",
	}, []string{"type", "outcome"})

	// CycleDuration — длительность цикла обработки.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailflow_cycle_duration_seconds",
		Help:    "Processing cycle duration.",
		Buckets: prometheus.DefBuckets,
	})
)

// Метрики доставки.
var (
	// DeliveryAttempts — попытки доставки по виду и результату.
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailflow_delivery_attempts_total",
		Help: "Delivery attempts, by kind and result.",
	}, []string{"kind", "result"})

	// DeliveryDuration — длительность попытки доставки по виду.
	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailflow_delivery_duration_seconds",
		Help:    "Delivery attempt duration, by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

// MetricsHandler возвращает HTTP handler для /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

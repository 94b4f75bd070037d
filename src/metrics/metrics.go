package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntentsPrepared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matrix_intents_prepared_total",
			Help: "Payment intents created, by kind (registration or upgrade)",
		},
		[]string{"kind"},
	)

	SettlementsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matrix_settlements_confirmed_total",
			Help: "Settlements confirmed and written to the ledger",
		},
	)

	ConfirmFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matrix_confirm_failures_total",
			Help: "Rejected confirm attempts, by reason",
		},
		[]string{"reason"},
	)

	IntentsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matrix_intents_expired_total",
			Help: "Pending intents moved to expired by the sweeper",
		},
	)

	IntentsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matrix_intents_failed_total",
			Help: "Pending intents explicitly abandoned",
		},
	)

	AmountSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matrix_amount_settled_base_units",
			Help: "Settled amounts in USDT base units, by destination",
		},
		[]string{"destination"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matrix_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matrix_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func RecordIntentPrepared(kind string) {
	IntentsPrepared.WithLabelValues(kind).Inc()
}

func RecordSettlement(uplineAmount, treasuryAmount uint64, toTreasury bool) {
	SettlementsConfirmed.Inc()
	if toTreasury {
		AmountSettled.WithLabelValues("treasury").Add(float64(uplineAmount + treasuryAmount))
		return
	}
	AmountSettled.WithLabelValues("upline").Add(float64(uplineAmount))
	AmountSettled.WithLabelValues("treasury").Add(float64(treasuryAmount))
}

func RecordConfirmFailure(reason string) {
	ConfirmFailures.WithLabelValues(reason).Inc()
}

func RecordIntentsExpired(n int64) {
	IntentsExpired.Add(float64(n))
}

func RecordIntentsFailed() {
	IntentsFailed.Inc()
}

// Middleware records request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

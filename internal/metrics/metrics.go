package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "brokerline",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brokerline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	ledgerMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerline",
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Committed-path balance mutations by kind (deposit, adjustment, deduction).",
		},
		[]string{"kind"},
	)

	insufficientBalance = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokerline",
			Subsystem: "ledger",
			Name:      "insufficient_balance_total",
			Help:      "Deductions refused because the balance was too low.",
		},
	)

	applicationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerline",
			Subsystem: "applications",
			Name:      "transitions_total",
			Help:      "Application status transitions by target status.",
		},
		[]string{"to"},
	)

	virtualAccountsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokerline",
			Subsystem: "virtual_accounts",
			Name:      "issued_total",
			Help:      "Virtual accounts issued.",
		},
	)

	virtualAccountsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokerline",
			Subsystem: "virtual_accounts",
			Name:      "expired_total",
			Help:      "Virtual accounts expired by reissue or sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerMutations,
		insufficientBalance,
		applicationTransitions,
		virtualAccountsIssued,
		virtualAccountsExpired,
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records in-flight, count and latency for next. path should
// be the route pattern, not the raw URL, to keep label cardinality bounded.
func InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RecordLedgerMutation(kind string) { ledgerMutations.WithLabelValues(kind).Inc() }

func RecordInsufficientBalance() { insufficientBalance.Inc() }

func RecordTransition(to string) { applicationTransitions.WithLabelValues(to).Inc() }

func RecordVirtualAccountIssued() { virtualAccountsIssued.Inc() }

func RecordVirtualAccountsExpired(n int64) { virtualAccountsExpired.Add(float64(n)) }

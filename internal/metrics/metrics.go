package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "laskutin",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "laskutin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	flightsImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "operations",
			Name:      "flights_imported_total",
			Help:      "Total number of flights recorded.",
		},
	)

	paymentsImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "payments",
			Name:      "imported_total",
			Help:      "Total number of bank payments booked on accounts.",
		},
	)

	entriesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "billing",
			Name:      "entries_written_total",
			Help:      "Total number of ledger entries written by billing runs.",
		},
	)

	invoicesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "invoicing",
			Name:      "generated_total",
			Help:      "Total number of invoices generated.",
		},
	)

	invoicesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "invoicing",
			Name:      "sent_total",
			Help:      "Total number of invoices delivered over mail.",
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "laskutin",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Total number of scheduled job runs.",
		},
		[]string{"job", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "laskutin",
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		flightsImported,
		paymentsImported,
		entriesWritten,
		invoicesGenerated,
		invoicesSent,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight marks the start of an HTTP request.
func IncInFlight() {
	httpInFlight.Inc()
}

// DecInFlight marks the end of an HTTP request.
func DecInFlight() {
	httpInFlight.Dec()
}

// ObserveRequest records a handled HTTP request against its route template.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// AddFlightsImported counts flights recorded by imports or the API.
func AddFlightsImported(n int) {
	if n <= 0 {
		return
	}
	flightsImported.Add(float64(n))
}

// AddPaymentsImported counts bank payments booked on accounts.
func AddPaymentsImported(n int) {
	if n <= 0 {
		return
	}
	paymentsImported.Add(float64(n))
}

// AddEntriesWritten counts ledger entries written by billing runs.
func AddEntriesWritten(n int) {
	if n <= 0 {
		return
	}
	entriesWritten.Add(float64(n))
}

// AddInvoicesGenerated counts invoices created by generation runs.
func AddInvoicesGenerated(n int) {
	if n <= 0 {
		return
	}
	invoicesGenerated.Add(float64(n))
}

// AddInvoicesSent counts invoices delivered over mail.
func AddInvoicesSent(n int) {
	if n <= 0 {
		return
	}
	invoicesSent.Add(float64(n))
}

// RecordJobRun records one scheduled job run and its outcome.
func RecordJobRun(job string, duration time.Duration, err error) {
	if job == "" {
		job = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jobRuns.WithLabelValues(job, outcome).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

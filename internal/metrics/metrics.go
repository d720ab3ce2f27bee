// Package metrics exposes Prometheus instrumentation for the HTTP
// surface and the discovery pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hearthplan"

// Collector bundles every metric the service records on one registry.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	candidatesFetched    *prometheus.CounterVec
	candidatesDropped    prometheus.Counter
	mergesPerformed      *prometheus.CounterVec
	filterRejections     *prometheus.CounterVec
	eventsProposed       prometheus.Counter
	notificationsSent    *prometheus.CounterVec
	registrationAttempts *prometheus.CounterVec
	paymentViolations    *prometheus.CounterVec
	emergencyStop        prometheus.Gauge
	runDuration          prometheus.Histogram
}

// NewCollector constructs a collector with all metrics registered.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		candidatesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_fetched_total",
			Help:      "Candidate events fetched, by source.",
		}, []string{"source"}),
		candidatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_dropped_total",
			Help:      "Candidates dropped as unfingerprintable or invalid.",
		}),
		mergesPerformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "merges_total",
			Help:      "Candidate merges into canonical events, by type.",
		}, []string{"type"}),
		filterRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "filter_rejections_total",
			Help:      "Filter check failures, by check name.",
		}, []string{"check"}),
		eventsProposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_proposed_total",
			Help:      "Events promoted to proposed and sent for approval.",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_sent_total",
			Help:      "Outbound notifications, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		registrationAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "attempts_total",
			Help:      "Registration attempts, by outcome.",
		}, []string{"outcome"}),
		paymentViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "payment_violations_total",
			Help:      "Payment safety violations, by type.",
		}, []string{"type"}),
		emergencyStop: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "emergency_stop",
			Help:      "1 when automated registration is emergency stopped.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of full discovery runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	collectors := []prometheus.Collector{
		c.requestDuration,
		c.requestTotal,
		c.candidatesFetched,
		c.candidatesDropped,
		c.mergesPerformed,
		c.filterRejections,
		c.eventsProposed,
		c.notificationsSent,
		c.registrationAttempts,
		c.paymentViolations,
		c.emergencyStop,
		c.runDuration,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// The domain recorders below tolerate a nil receiver so components can
// run without instrumentation, e.g. under test.

// CandidatesFetched records fetched candidates for a source.
func (c *Collector) CandidatesFetched(source string, count int) {
	if c == nil {
		return
	}
	c.candidatesFetched.WithLabelValues(source).Add(float64(count))
}

// CandidatesDropped records dropped candidates.
func (c *Collector) CandidatesDropped(count int) {
	if c == nil || count <= 0 {
		return
	}
	c.candidatesDropped.Add(float64(count))
}

// MergePerformed records one merge by type (exact or fuzzy).
func (c *Collector) MergePerformed(mergeType string) {
	if c == nil {
		return
	}
	c.mergesPerformed.WithLabelValues(mergeType).Inc()
}

// FilterRejection records one failed check.
func (c *Collector) FilterRejection(check string) {
	if c == nil {
		return
	}
	c.filterRejections.WithLabelValues(check).Inc()
}

// EventProposed records one promotion to proposed.
func (c *Collector) EventProposed() {
	if c == nil {
		return
	}
	c.eventsProposed.Inc()
}

// NotificationSent records an outbound notification outcome.
func (c *Collector) NotificationSent(channel, outcome string) {
	if c == nil {
		return
	}
	c.notificationsSent.WithLabelValues(channel, outcome).Inc()
}

// RegistrationAttempt records an attempt outcome.
func (c *Collector) RegistrationAttempt(outcome string) {
	if c == nil {
		return
	}
	c.registrationAttempts.WithLabelValues(outcome).Inc()
}

// PaymentViolation records one safety violation by type.
func (c *Collector) PaymentViolation(violationType string) {
	if c == nil {
		return
	}
	c.paymentViolations.WithLabelValues(violationType).Inc()
}

// SetEmergencyStop flips the emergency stop gauge.
func (c *Collector) SetEmergencyStop(stopped bool) {
	if c == nil {
		return
	}
	if stopped {
		c.emergencyStop.Set(1)
	} else {
		c.emergencyStop.Set(0)
	}
}

// RunCompleted records the duration of one discovery run.
func (c *Collector) RunCompleted(d time.Duration) {
	if c == nil {
		return
	}
	c.runDuration.Observe(d.Seconds())
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carshare/internal/app/middleware"
	"carshare/internal/app/policies"
	"carshare/internal/domain/shared/apperr"
)

// Metrics owns a private registry so tests can build as many instances as they like.
// A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	dispatched     *prometheus.CounterVec
	dispatchTiming *prometheus.HistogramVec
	bookings       prometheus.Counter
	paid           *prometheus.CounterVec
	notifyFailed   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_messages_total",
			Help: "Commands and queries dispatched, by outcome kind.",
		}, []string{"kind", "key", "outcome"}),
		dispatchTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bus_message_duration_seconds",
			Help:    "Command and query handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "key"}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Bookings created.",
		}),
		paid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_marked_paid_total",
			Help: "Bookings transitioned to paid, by entry point.",
		}, []string{"source"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notification sends that failed, by template.",
		}, []string{"template"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.dispatched, m.dispatchTiming,
		m.bookings, m.paid, m.notifyFailed,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// Observe implements middleware.Observer.
func (m *Metrics) Observe(kind, key string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindName(err)
	}
	m.dispatched.WithLabelValues(kind, key, outcome).Inc()
	m.dispatchTiming.WithLabelValues(kind, key).Observe(took.Seconds())
}

func (m *Metrics) BookingCreated() {
	if m == nil {
		return
	}
	m.bookings.Inc()
}

func (m *Metrics) PaymentMarkedPaid(source string) {
	if m == nil {
		return
	}
	m.paid.WithLabelValues(source).Inc()
}

func (m *Metrics) NotificationFailed(template string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(template).Inc()
}

var _ middleware.Observer = (*Metrics)(nil)
var _ policies.Telemetry = (*Metrics)(nil)

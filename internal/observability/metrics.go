package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	macrosRuns      *prometheus.CounterVec
	macrosRows      *prometheus.CounterVec
	misReports      *prometheus.CounterVec
	misRuleFailures *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "macros_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "macros_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "macros_pipeline_runs_total",
		Help: "Jumlah eksekusi pipeline macros per portal dan hasil.",
	}, []string{"portal", "outcome"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "macros_pipeline_rows_total",
		Help: "Jumlah baris ekspor yang dinormalisasi atau dibuang per portal.",
	}, []string{"portal", "result"})
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mis_reports_total",
		Help: "Jumlah laporan MIS yang dihasilkan per kebijakan error.",
	}, []string{"policy"})
	ruleFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mis_rule_failures_total",
		Help: "Jumlah rumus MIS yang gagal dievaluasi per jenis kegagalan.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, runs, rows, reports, ruleFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		macrosRuns:      runs,
		macrosRows:      rows,
		misReports:      reports,
		misRuleFailures: ruleFailures,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// MacrosProcessed mencatat hasil satu eksekusi pipeline macros.
func (m *Metrics) MacrosProcessed(portal, outcome string) {
	if m == nil {
		return
	}
	m.macrosRuns.WithLabelValues(portal, outcome).Inc()
}

// MacrosRows mencatat jumlah baris yang dinormalisasi dan dibuang.
func (m *Metrics) MacrosRows(portal string, normalized, dropped int) {
	if m == nil {
		return
	}
	m.macrosRows.WithLabelValues(portal, "normalized").Add(float64(normalized))
	m.macrosRows.WithLabelValues(portal, "dropped").Add(float64(dropped))
}

// MISGenerated mencatat laporan MIS yang berhasil dibuat.
func (m *Metrics) MISGenerated(policy string, _, _ int) {
	if m == nil {
		return
	}
	m.misReports.WithLabelValues(policy).Inc()
}

// MISRuleFailed mencatat rumus yang gagal.
func (m *Metrics) MISRuleFailed(kind string) {
	if m == nil {
		return
	}
	m.misRuleFailures.WithLabelValues(kind).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

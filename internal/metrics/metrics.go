package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketplace-scraper/internal/crawler"
	"marketplace-scraper/pkg/models"
)

// Metrics bundles the Prometheus collectors for search sessions and reports
// session events into them.
type Metrics struct {
	Registry        *prometheus.Registry
	SessionsTotal   *prometheus.CounterVec
	AttemptsTotal   prometheus.Counter
	FailuresTotal   *prometheus.CounterVec
	RecordsTotal    prometheus.Counter
	ItemsSkipped    prometheus.Counter
	SessionDuration prometheus.Histogram

	mu sync.Mutex
	// counted holds the last load failure already counted per session, so
	// Finished does not count it a second time.
	counted map[string]error
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_sessions_total",
			Help: "Search sessions by terminal state.",
		},
		[]string{"state"},
	)
	attempts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_load_attempts_total",
			Help: "Search page loads started.",
		},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_failures_total",
			Help: "Failed loads and sessions by error kind.",
		},
		[]string{"kind"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_records_emitted_total",
			Help: "Listings written to the sink.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_items_skipped_total",
			Help: "Listing slots that could not be read.",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marketplace_session_duration_seconds",
			Help:    "Wall time of a search session.",
			Buckets: []float64{5, 10, 20, 30, 60, 120, 300},
		},
	)

	registry.MustRegister(sessions, attempts, failures, records, skipped, duration)

	return &Metrics{
		Registry:        registry,
		SessionsTotal:   sessions,
		AttemptsTotal:   attempts,
		FailuresTotal:   failures,
		RecordsTotal:    records,
		ItemsSkipped:    skipped,
		SessionDuration: duration,
		counted:         make(map[string]error),
	}
}

// Router serves /metrics and /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	return r
}

func (m *Metrics) StateChanged(_ context.Context, session models.CrawlSession) {
	if m == nil {
		return
	}
	if session.State == models.Loading {
		m.AttemptsTotal.Inc()
	}
}

func (m *Metrics) AttemptFailed(_ context.Context, session models.CrawlSession, err error) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(crawler.ErrorKind(err)).Inc()

	m.mu.Lock()
	m.counted[session.ID] = err
	m.mu.Unlock()
}

func (m *Metrics) RecordEmitted(context.Context, models.CrawlSession, models.OutputRecord) {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

func (m *Metrics) ItemSkipped(context.Context, models.CrawlSession, error) {
	if m == nil {
		return
	}
	m.ItemsSkipped.Inc()
}

// Finished counts the session outcome, and its error unless that error was
// the load failure AttemptFailed already counted.
func (m *Metrics) Finished(_ context.Context, session models.CrawlSession, err error) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(session.State.String()).Inc()
	if !session.FinishedAt.IsZero() {
		m.SessionDuration.Observe(session.FinishedAt.Sub(session.StartedAt).Seconds())
	}

	m.mu.Lock()
	last, seen := m.counted[session.ID]
	delete(m.counted, session.ID)
	m.mu.Unlock()

	if err != nil && !(seen && errors.Is(err, last)) {
		m.FailuresTotal.WithLabelValues(crawler.ErrorKind(err)).Inc()
	}
}

// Package metrics exposes Prometheus metrics for the document service on a
// dedicated listener, separate from the API port.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters the API surface increments.
var (
	DocumentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jacs_documents_created_total",
		Help: "Number of documents created and sealed.",
	})
	DocumentsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jacs_documents_updated_total",
		Help: "Number of document versions produced by updates.",
	})
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jacs_verifications_total",
		Help: "Verification runs by outcome.",
	}, []string{"outcome"})
	AgreementMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jacs_agreement_mutations_total",
		Help: "Agreement mutations by kind (propose, sign, disagree).",
	}, []string{"kind"})
)

// MetricsServer serves /metrics.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(name, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: name}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	))

	return &MetricsServer{
		srv: &http.Server{Addr: addr, Handler: mux},
	}, nil
}

// ListenAndServe blocks serving metrics until shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package metrics exposes Prometheus instrumentation for the search engine
// and a small /metrics server for operators.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PassAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigiauto_pass_attempts_total",
			Help: "Query passes executed, by site, pass and outcome",
		},
		[]string{"site", "pass", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vigiauto_fetch_duration_seconds",
			Help:    "Duration of page fetches",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host", "mode"},
	)

	FetchStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigiauto_fetch_status_total",
			Help: "Fetches by host and HTTP status (or 'error')",
		},
		[]string{"host", "status"},
	)

	Blocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigiauto_blocks_total",
			Help: "Anti-bot challenges encountered, by host and vendor",
		},
		[]string{"host", "source"},
	)

	ListingsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigiauto_listings_extracted_total",
			Help: "Normalized listings produced, by site and strategy",
		},
		[]string{"site", "strategy"},
	)

	RedFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigiauto_red_flags_total",
			Help: "Red flags raised, by type and severity",
		},
		[]string{"type", "severity"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigiauto_proxy_failures_total",
			Help: "Failed requests through a proxy",
		},
		[]string{"proxy_url"},
	)
)

// RecordFetch updates fetch metrics for one request.
func RecordFetch(host, mode string, statusCode int, failed bool, d time.Duration) {
	status := strconv.Itoa(statusCode)
	if failed {
		status = "error"
	}
	FetchStatus.WithLabelValues(host, status).Inc()
	FetchDuration.WithLabelValues(host, mode).Observe(d.Seconds())
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv *http.Server
}

// Start listens on the given port in a background goroutine.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()
	return &Server{srv: srv}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

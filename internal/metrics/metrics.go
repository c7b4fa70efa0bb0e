package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/nichescout/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nichescout_provider_requests_total",
			Help: "Total number of provider calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nichescout_provider_duration_seconds",
			Help:    "Duration of provider calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nichescout_fetches_total",
			Help: "Total number of HTTP fetches by host and status",
		},
		[]string{"host", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nichescout_fetch_duration_seconds",
			Help:    "Duration of HTTP fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nichescout_fetch_bytes_total",
			Help: "Total bytes downloaded across all fetches",
		},
		[]string{"host"},
	)

	BlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nichescout_blocked_responses_total",
			Help: "Responses identified as consent walls, captchas or bot challenges",
		},
		[]string{"source"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nichescout_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)

	AccountsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nichescout_accounts_discovered_total",
			Help: "Distinct accounts registered across runs",
		},
	)

	ItemsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nichescout_items_analyzed_total",
			Help: "Items that reached engagement analysis",
		},
	)

	OutlierItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nichescout_outlier_items_total",
			Help: "Items flagged as viral outliers",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nichescout_runs_total",
			Help: "Pipeline runs by result",
		},
		[]string{"result"},
	)
)

// RecordFetch updates fetch metrics. A status of 0 marks a transport error.
func RecordFetch(host string, status int, d time.Duration, bytes int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	FetchesTotal.WithLabelValues(host, statusStr).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(bytes))
}

// RecordProviderCall updates the provider counters for one call.
func RecordProviderCall(endpoint, outcome string, d time.Duration) {
	ProviderRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	ProviderDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordReport adds the totals of a finished run.
func RecordReport(r *model.Report, result string) {
	RunsTotal.WithLabelValues(result).Inc()
	if r == nil {
		return
	}
	AccountsDiscovered.Add(float64(r.TotalAccountsFound))
	for _, ar := range r.PerAccount {
		ItemsAnalyzed.Add(float64(len(ar.Items)))
		OutlierItems.Add(float64(ar.Summary.OutlierCount))
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start begins listening on the specified port and exposes /metrics.
// Port 0 picks a free port, see Addr.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

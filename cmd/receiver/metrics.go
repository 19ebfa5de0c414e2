package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/stats"
)

// metricsServer serves /metrics and /health. It runs as a restartable
// supervisor service rather than a pipeline stage.
type metricsServer struct {
	addr    string
	handler http.Handler
}

func newMetricsServer(addr string, st *stats.Stats) *metricsServer {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		st,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &metricsServer{addr: addr, handler: mux}
}

// Serve implements suture.Service
func (m *metricsServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              m.addr,
		Handler:           m.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", m.addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (m *metricsServer) String() string {
	return "metrics"
}

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/config"
	"github.com/saviobatista/ais-receiver/internal/logging"
	"github.com/saviobatista/ais-receiver/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", false)
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Receiver failed")
		os.Exit(1)
	}
	log.Info().Msg("Receiver stopped")
}

// run assembles and serves the pipeline. It returns the first fatal stage
// error, or nil once ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	st := stats.New()

	topo, release, err := openSinks(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer release.Close()

	r, err := newReceiver(cfg, st, topo)
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		r.tree.AddService(newMetricsServer(cfg.MetricsAddr, st))
	}

	// background work stops with the tree, before sinks are released
	bgCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logStats(bgCtx, st, cfg.StatsInterval)
	}()
	if cfg.DBConnStr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.StartPersistence(bgCtx, cfg.StatsInterval)
		}()
	}

	log.Info().
		Str("run_id", st.RunID.String()).
		Strs("raw", r.raw.Consumers()).
		Strs("decoded", r.decoded.Consumers()).
		Strs("accumulated", r.accumulated.Consumers()).
		Msg("Receiver started")

	err = r.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// logStats logs a statistics line every interval
func logStats(ctx context.Context, st *stats.Stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Str("stats", st.String()).Msg("Pipeline statistics")
		}
	}
}

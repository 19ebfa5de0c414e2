package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/config"
	"github.com/saviobatista/ais-receiver/internal/csvsink"
	"github.com/saviobatista/ais-receiver/internal/db"
	"github.com/saviobatista/ais-receiver/internal/db/migrations"
	"github.com/saviobatista/ais-receiver/internal/embedded"
	"github.com/saviobatista/ais-receiver/internal/nats"
	"github.com/saviobatista/ais-receiver/internal/redis"
	"github.com/saviobatista/ais-receiver/internal/stats"
	"github.com/saviobatista/ais-receiver/internal/storage"
	"github.com/saviobatista/ais-receiver/internal/types"
	"github.com/saviobatista/ais-receiver/internal/udpforward"
)

// connectTimeout bounds how long startup waits for a backend
const connectTimeout = 30 * time.Second

// evictTimeout bounds a key delete made from the accumulator goroutine
const evictTimeout = 2 * time.Second

// vesselStore drops the record of a vessel the accumulator evicted
type vesselStore interface {
	DeleteVessel(ctx context.Context, mmsi int64) error
}

func forgetVessel(store vesselStore) func(int64) {
	return func(mmsi int64) {
		ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
		defer cancel()
		if err := store.DeleteVessel(ctx, mmsi); err != nil {
			log.Warn().Err(err).Int64("mmsi", mmsi).Msg("Failed to delete evicted vessel")
		}
	}
}

// closers releases sinks in reverse order of opening
type closers []func() error

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close sink")
		}
	}
}

// retry calls connect with exponential backoff until it succeeds or the
// connect timeout passes
func retry[T any](ctx context.Context, name string, connect func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout

	return backoff.RetryNotifyWithData[T](connect, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("sink", name).Dur("retry_in", wait).Msg("Sink not ready")
	})
}

// openSinks connects every configured sink. On failure everything opened so
// far is closed again.
func openSinks(ctx context.Context, cfg *config.Config, st *stats.Stats) (topo topology, release closers, err error) {
	defer func() {
		if err != nil {
			release.Close()
			release = nil
		}
	}()

	if cfg.DBConnStr != "" {
		client, err := db.New(cfg.DBConnStr, db.WithTables(cfg.RawTable, cfg.AISTable))
		if err != nil {
			return topo, release, fmt.Errorf("failed to create database client: %w", err)
		}
		release = append(release, client.Close)

		if err := client.Connect(ctx, connectTimeout); err != nil {
			return topo, release, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.New(client.DB()).Migrate(ctx, migrations.Schema(cfg.RawTable, cfg.AISTable)); err != nil {
			return topo, release, err
		}

		topo.raw = append(topo.raw, sink[types.RawDatagram]{"postgres-raw", client.StoreRawDatagram})
		topo.decoded = append(topo.decoded, sink[types.Message]{"postgres-ais", client.StoreMessage})
		st.SetStore(client)
	}

	if cfg.EmbeddedDBPath != "" {
		store, err := embedded.Open(cfg.EmbeddedDBPath)
		if err != nil {
			return topo, release, err
		}
		release = append(release, store.Close)
		topo.decoded = append(topo.decoded, sink[types.Message]{"badger", store.StoreMessage})
	}

	if cfg.CSVFile != "" {
		w, err := csvsink.New(cfg.CSVFile, cfg.CSVFields)
		if err != nil {
			return topo, release, err
		}
		release = append(release, w.Close)
		topo.decoded = append(topo.decoded, sink[types.Message]{"csv", w.Write})
	}

	if cfg.NATSURL != "" {
		client, err := retry(ctx, "nats", func() (*nats.Client, error) { return nats.New(cfg.NATSURL) })
		if err != nil {
			return topo, release, err
		}
		release = append(release, func() error { client.Close(); return nil })
		topo.raw = append(topo.raw, sink[types.RawDatagram]{"nats-raw", client.PublishRaw})
		topo.decoded = append(topo.decoded, sink[types.Message]{"nats-decoded", client.PublishDecoded})
	}

	if cfg.RedisAddr != "" {
		client, err := retry(ctx, "redis", func() (*redis.Client, error) { return redis.New(cfg.RedisAddr, cfg.AccumulatorAge) })
		if err != nil {
			return topo, release, err
		}
		release = append(release, client.Close)
		topo.accumulated = append(topo.accumulated, sink[types.Message]{"redis", client.StoreVessel})
		topo.evicted = append(topo.evicted, forgetVessel(client))
	}

	if len(cfg.UDPForward) > 0 {
		f, err := udpforward.New(cfg.UDPForward)
		if err != nil {
			return topo, release, err
		}
		release = append(release, f.Close)
		topo.accumulated = append(topo.accumulated, sink[types.Message]{"udp-forward", f.Send})
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
			return topo, release, fmt.Errorf("failed to create output directory: %w", err)
		}
		s := storage.New(cfg.OutputDir)
		if err := s.Start(); err != nil {
			return topo, release, err
		}
		release = append(release, s.Stop)
		topo.raw = append(topo.raw, sink[types.RawDatagram]{"raw-log", s.WriteDatagram})
	}

	return topo, release, nil
}

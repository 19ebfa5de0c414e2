package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/db"
)

// recordSource streams stored datagrams in time order
type recordSource interface {
	RawRecords(ctx context.Context, skip, count int, fn func(db.RawRecord) error) error
}

// replayer re-sends stored datagrams keeping their original spacing,
// compressed by rate
type replayer struct {
	source recordSource
	send   func([]byte) error
	rate   float64
	skip   int
	count  int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newReplayer(source recordSource, send func([]byte) error, rate float64, skip, count int) *replayer {
	if rate <= 0 {
		rate = 1
	}
	return &replayer{
		source: source,
		send:   send,
		rate:   rate,
		skip:   skip,
		count:  count,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Run makes one pass over the selected records and returns how many were sent
func (r *replayer) Run(ctx context.Context) (int, error) {
	var (
		sent  int
		tPrev float64
		tSent time.Time
	)

	err := r.source.RawRecords(ctx, r.skip, r.count, func(rec db.RawRecord) error {
		if sent > 0 {
			gap := time.Duration((rec.T - tPrev) / r.rate * float64(time.Second))
			if wait := gap - r.now().Sub(tSent); wait > 0 {
				log.Debug().Dur("wait", wait).Msg("Sleeping between records")
				if err := r.sleep(ctx, wait); err != nil {
					return err
				}
			}
		}

		if err := r.send([]byte(rec.Msg)); err != nil {
			return err
		}
		tSent = r.now()
		tPrev = rec.T
		sent++
		return nil
	})
	return sent, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

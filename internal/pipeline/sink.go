package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/fanout"
	"github.com/saviobatista/ais-receiver/internal/stats"
)

// WriteFunc delivers one value to an external sink
type WriteFunc[T any] func(ctx context.Context, v T) error

// Drain hands every queued value to write until the context is done or the
// queue closes. Write errors are logged and counted; the value is dropped and
// draining continues.
func Drain[T any](ctx context.Context, name string, in *fanout.Queue[T], write WriteFunc[T], st *stats.Stats) error {
	for {
		v, err := in.Get(ctx)
		if err != nil {
			if errors.Is(err, fanout.ErrClosed) {
				return nil
			}
			return err
		}

		if err := write(ctx, v); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("stage", name).Msg("Sink write failed")
			if st != nil {
				st.IncrementSinkErrors()
			}
		}
	}
}

// Package accumulator keeps the merged, time-evicted state of every vessel heard.
package accumulator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/fanout"
	"github.com/saviobatista/ais-receiver/internal/stats"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// DefaultMaxAge is how long a silent vessel is kept
const DefaultMaxAge = time.Hour

// TrimChars are stripped from both ends of trimmed text fields
const TrimChars = " \t\n\r@"

// DefaultStripFields are protocol housekeeping fields removed from every record
var DefaultStripFields = []string{
	"ais_version", "band_flag", "commstate_cs_fill", "commstate_flag",
	"communication_state", "display_flag", "dsc_flag", "dte", "id", "keep_flag",
	"raim", "repeat_indicator", "received_stations", "slot_increment",
	"slot_number", "slot_offset", "slot_timeout", "slots_to_allocate", "spare",
	"spare2", "sync_state", "unit_flag", "utc_year", "utc_month", "utc_day",
	"utc_hour", "utc_min", "utc_minute", "utc_spare", "valid",
}

// DefaultTrimFields are the padded text fields
var DefaultTrimFields = []string{"callsign", "destination", "name"}

type record struct {
	fields     types.Message
	lastUpdate time.Time
}

// Accumulator merges decoded messages per MMSI. It is owned by a single
// goroutine and is not safe for concurrent use.
type Accumulator struct {
	maxAge  time.Duration
	strip   map[string]struct{}
	trim    map[string]struct{}
	vessels map[int64]*record
	now     func() time.Time
	stats   *stats.Stats
	onEvict func(mmsi int64)
}

// Option configures an Accumulator
type Option func(*Accumulator)

// WithClock replaces the wall clock used for eviction
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		a.now = now
	}
}

// WithStats reports the number of held vessels after every message
func WithStats(st *stats.Stats) Option {
	return func(a *Accumulator) {
		a.stats = st
	}
}

// WithOnEvict is called with the MMSI of every vessel the sweep drops
func WithOnEvict(fn func(mmsi int64)) Option {
	return func(a *Accumulator) {
		a.onEvict = fn
	}
}

// WithStripFields replaces the stripped field set
func WithStripFields(fields []string) Option {
	return func(a *Accumulator) {
		a.strip = toSet(fields)
	}
}

// WithTrimFields replaces the trimmed field set
func WithTrimFields(fields []string) Option {
	return func(a *Accumulator) {
		a.trim = toSet(fields)
	}
}

// New creates a new Accumulator. A maxAge of zero or less disables history:
// every message is passed on stripped but unmerged.
func New(maxAge time.Duration, opts ...Option) *Accumulator {
	a := &Accumulator{
		maxAge:  maxAge,
		strip:   toSet(DefaultStripFields),
		trim:    toSet(DefaultTrimFields),
		vessels: make(map[int64]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Process applies one decoded message and returns the record to publish
func (a *Accumulator) Process(msg types.Message) types.Message {
	clean := make(types.Message, len(msg))
	for k, v := range msg {
		if _, drop := a.strip[k]; drop {
			continue
		}
		if _, ok := a.trim[k]; ok {
			if s, isString := v.(string); isString {
				v = strings.Trim(s, TrimChars)
			}
		}
		clean[k] = v
	}

	if a.maxAge <= 0 {
		return clean
	}

	now := a.now()
	out := clean
	if mmsi, ok := clean.MMSI(); ok {
		rec, exists := a.vessels[mmsi]
		// a record past maxAge is already gone even if the sweep has not run
		if !exists || now.Sub(rec.lastUpdate) > a.maxAge {
			rec = &record{fields: make(types.Message, len(clean))}
			a.vessels[mmsi] = rec
		}
		for k, v := range clean {
			rec.fields[k] = v
		}
		rec.lastUpdate = now
		out = rec.fields.Clone()
	} else {
		log.Warn().Interface("message", msg).Msg("Message without mmsi passed through unmerged")
	}

	a.evict(now)
	if a.stats != nil {
		a.stats.SetActiveVessels(uint64(len(a.vessels)))
	}
	return out
}

// Get returns a copy of the merged record for a vessel
func (a *Accumulator) Get(mmsi int64) (types.Message, bool) {
	rec, ok := a.vessels[mmsi]
	if !ok {
		return nil, false
	}
	if a.maxAge > 0 && a.now().Sub(rec.lastUpdate) > a.maxAge {
		return nil, false
	}
	return rec.fields.Clone(), true
}

// Len returns the number of vessels held
func (a *Accumulator) Len() int {
	return len(a.vessels)
}

// Run consumes decoded messages until the context is done or the queue closes
func (a *Accumulator) Run(ctx context.Context, in *fanout.Queue[types.Message], out *fanout.Broadcaster[types.Message]) error {
	for {
		msg, err := in.Get(ctx)
		if err != nil {
			if errors.Is(err, fanout.ErrClosed) {
				return nil
			}
			return err
		}
		rec := a.Process(msg)
		if out == nil || out.Len() == 0 {
			continue
		}
		if err := out.Publish(ctx, rec); err != nil {
			return err
		}
	}
}

func (a *Accumulator) evict(now time.Time) {
	for mmsi, rec := range a.vessels {
		if now.Sub(rec.lastUpdate) > a.maxAge {
			log.Debug().Int64("mmsi", mmsi).Msg("Evicted silent vessel")
			delete(a.vessels, mmsi)
			if a.onEvict != nil {
				a.onEvict(mmsi)
			}
		}
	}
}

func toSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

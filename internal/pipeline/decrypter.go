// Package pipeline holds the decode stage between the raw and decoded fan-outs.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/decoder"
	"github.com/saviobatista/ais-receiver/internal/fanout"
	"github.com/saviobatista/ais-receiver/internal/multipart"
	"github.com/saviobatista/ais-receiver/internal/parser"
	"github.com/saviobatista/ais-receiver/internal/stats"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// Decrypter validates, reassembles and decodes raw datagrams
type Decrypter struct {
	reassembler *multipart.Reassembler
	adapter     *decoder.Adapter
	stats       *stats.Stats
}

// NewDecrypter creates a new Decrypter. stats may be nil.
func NewDecrypter(d decoder.PayloadDecoder, partialTimeout time.Duration, st *stats.Stats) *Decrypter {
	return &Decrypter{
		reassembler: multipart.New(partialTimeout),
		adapter:     decoder.NewAdapter(d),
		stats:       st,
	}
}

// Process decodes every complete message carried by one datagram
func (d *Decrypter) Process(dg types.RawDatagram) []types.Message {
	start := time.Now()
	var out []types.Message

	for _, line := range parser.SplitDatagram(dg.Data) {
		s, err := parser.ParseLine(line)
		if err != nil {
			d.reject(err)
			continue
		}
		d.count((*stats.Stats).IncrementSentences)

		complete, ok := d.reassembler.Add(s, dg.ReceiptTime)
		if !ok {
			continue
		}

		msg, err := d.adapter.Decode(complete.Payload, complete.FillBits, dg.ReceiptTime)
		switch {
		case errors.Is(err, decoder.ErrRangeViolation):
			d.count((*stats.Stats).IncrementRangeViolations)
			continue
		case err != nil:
			d.count((*stats.Stats).IncrementDecodeFailures)
			log.Warn().Err(err).Str("stage", "decrypter").Msg("Failed to decode message")
			continue
		}

		d.count((*stats.Stats).IncrementDecoded)
		if d.stats != nil {
			if msgType, ok := types.AsInt64(msg[types.FieldType]); ok {
				d.stats.IncrementMessageType(int(msgType))
			}
		}
		out = append(out, msg)
	}

	if d.stats != nil {
		d.stats.SetPendingPartials(uint64(d.reassembler.Pending()))
		d.stats.SetExpiredPartials(d.reassembler.Expired())
		d.stats.AddProcessingTime(time.Since(start))
	}
	return out
}

// Run consumes raw datagrams until the context is done or the queue closes
func (d *Decrypter) Run(ctx context.Context, in *fanout.Queue[types.RawDatagram], out *fanout.Broadcaster[types.Message]) error {
	for {
		dg, err := in.Get(ctx)
		if err != nil {
			if errors.Is(err, fanout.ErrClosed) {
				return nil
			}
			return err
		}

		for _, msg := range d.Process(dg) {
			if err := out.Publish(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (d *Decrypter) reject(err error) {
	switch {
	case errors.Is(err, parser.ErrIgnored):
		d.count((*stats.Stats).IncrementIgnored)
	case errors.Is(err, parser.ErrChecksumMismatch):
		d.count((*stats.Stats).IncrementChecksumFailures)
		log.Warn().Err(err).Str("stage", "decrypter").Msg("Dropped sentence")
	default:
		d.count((*stats.Stats).IncrementMalformed)
		log.Warn().Err(err).Str("stage", "decrypter").Msg("Dropped sentence")
	}
}

func (d *Decrypter) count(inc func(*stats.Stats)) {
	if d.stats != nil {
		inc(d.stats)
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/saviobatista/ais-receiver/internal/accumulator"
	"github.com/saviobatista/ais-receiver/internal/capture"
	"github.com/saviobatista/ais-receiver/internal/config"
	"github.com/saviobatista/ais-receiver/internal/decoder"
	"github.com/saviobatista/ais-receiver/internal/fanout"
	"github.com/saviobatista/ais-receiver/internal/pipeline"
	"github.com/saviobatista/ais-receiver/internal/stats"
	"github.com/saviobatista/ais-receiver/internal/supervisor"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// sink is one external consumer of a fan-out
type sink[T any] struct {
	name  string
	write pipeline.WriteFunc[T]
}

// topology lists the sinks hanging off each fan-out. evicted is told about
// every vessel the accumulator drops.
type topology struct {
	raw         []sink[types.RawDatagram]
	decoded     []sink[types.Message]
	accumulated []sink[types.Message]
	evicted     []func(mmsi int64)
}

// receiver is the assembled pipeline
type receiver struct {
	tree     *supervisor.Tree
	listener *capture.Listener

	raw         *fanout.Broadcaster[types.RawDatagram]
	decoded     *fanout.Broadcaster[types.Message]
	accumulated *fanout.Broadcaster[types.Message]
}

// newReceiver wires the stages from the sinks backwards so that a stage
// nobody consumes from is never started
func newReceiver(cfg *config.Config, st *stats.Stats, topo topology, opts ...capture.Option) (*receiver, error) {
	r := &receiver{
		tree:        supervisor.New("ais-receiver", supervisor.DefaultTreeConfig()),
		raw:         fanout.NewBroadcaster[types.RawDatagram]("raw", cfg.QueueCapacity),
		decoded:     fanout.NewBroadcaster[types.Message]("decoded", cfg.QueueCapacity, fanout.WithCopy(types.Message.Clone)),
		accumulated: fanout.NewBroadcaster[types.Message]("accumulated", cfg.QueueCapacity, fanout.WithCopy(types.Message.Clone)),
	}

	if err := addSinks(r.tree, r.accumulated, topo.accumulated, st); err != nil {
		return nil, err
	}
	r.accumulated.Seal()

	if r.accumulated.Len() > 0 {
		in, err := r.decoded.Register("accumulator")
		if err != nil {
			return nil, err
		}
		acc := accumulator.New(cfg.AccumulatorAge, accumulatorOptions(cfg, st, topo.evicted)...)
		r.tree.AddStage("accumulator", func(ctx context.Context) error {
			return acc.Run(ctx, in, r.accumulated)
		})
	}
	if err := addSinks(r.tree, r.decoded, topo.decoded, st); err != nil {
		return nil, err
	}
	r.decoded.Seal()

	if r.decoded.Len() > 0 {
		in, err := r.raw.Register("decrypter")
		if err != nil {
			return nil, err
		}
		dec := pipeline.NewDecrypter(decoder.NewAIS(), cfg.MultipartTimeout, st)
		r.tree.AddStage("decrypter", func(ctx context.Context) error {
			return dec.Run(ctx, in, r.decoded)
		})
	}
	if err := addSinks(r.tree, r.raw, topo.raw, st); err != nil {
		return nil, err
	}
	r.raw.Seal()

	r.listener = capture.New(captureConfig(cfg), r.raw, st, opts...)
	if cfg.SerialDevice == "" {
		// bind now so a busy port fails startup instead of the running tree
		if err := r.listener.Listen(); err != nil {
			return nil, err
		}
	}
	r.tree.AddStage("listener", r.listener.Run)

	return r, nil
}

// Run serves the pipeline until ctx is done or a stage fails
func (r *receiver) Run(ctx context.Context) error {
	return r.tree.Serve(ctx)
}

func addSinks[T any](tree *supervisor.Tree, b *fanout.Broadcaster[T], sinks []sink[T], st *stats.Stats) error {
	for _, s := range sinks {
		in, err := b.Register(s.name)
		if err != nil {
			return fmt.Errorf("register %s on %s: %w", s.name, b.Name(), err)
		}
		name, write := s.name, s.write
		tree.AddStage(name, func(ctx context.Context) error {
			return pipeline.Drain(ctx, name, in, write, st)
		})
	}
	return nil
}

func accumulatorOptions(cfg *config.Config, st *stats.Stats, evicted []func(int64)) []accumulator.Option {
	opts := []accumulator.Option{accumulator.WithStats(st)}
	if len(evicted) > 0 {
		opts = append(opts, accumulator.WithOnEvict(func(mmsi int64) {
			for _, fn := range evicted {
				fn(mmsi)
			}
		}))
	}
	if cfg.DropFields != nil {
		opts = append(opts, accumulator.WithStripFields(cfg.DropFields))
	}
	if cfg.TrimFields != nil {
		opts = append(opts, accumulator.WithTrimFields(cfg.TrimFields))
	}
	return opts
}

func captureConfig(cfg *config.Config) capture.Config {
	return capture.Config{
		UDPPort:        cfg.UDPPort,
		UDPSize:        cfg.UDPSize,
		SerialDevice:   cfg.SerialDevice,
		SerialBaudRate: cfg.SerialBaudRate,
		SerialDataBits: cfg.SerialDataBits,
		SerialParity:   cfg.SerialParity,
		SerialStopBits: cfg.SerialStopBits,
	}
}

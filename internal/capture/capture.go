// Package capture reads the AIS feed from a UDP port or a serial device.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/fanout"
	"github.com/saviobatista/ais-receiver/internal/stats"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// Source failures. Both are fatal for the process.
var (
	ErrStreamRead   = errors.New("stream read failed")
	ErrStreamClosed = errors.New("stream closed")
)

// DefaultUDPSize fits twenty maximum length sentences
const DefaultUDPSize = 20 * 85

// streamBufferSize bounds one read from a serial device
const streamBufferSize = 4096

// Config selects and configures the input
type Config struct {
	UDPPort int
	UDPSize int

	SerialDevice   string
	SerialBaudRate int
	SerialDataBits int
	SerialParity   string
	SerialStopBits string
}

// Opener opens the byte stream for stream mode
type Opener func(cfg Config) (io.ReadCloser, error)

// Listener stamps and publishes everything read from the input
type Listener struct {
	cfg   Config
	out   *fanout.Broadcaster[types.RawDatagram]
	stats *stats.Stats
	open  Opener

	mu   sync.Mutex
	conn net.PacketConn
}

// Option configures a Listener
type Option func(*Listener)

// WithOpener replaces the serial opener used in stream mode
func WithOpener(open Opener) Option {
	return func(l *Listener) {
		l.open = open
	}
}

// New creates a new Listener. stats may be nil.
func New(cfg Config, out *fanout.Broadcaster[types.RawDatagram], st *stats.Stats, opts ...Option) *Listener {
	if cfg.UDPSize <= 0 {
		cfg.UDPSize = DefaultUDPSize
	}
	l := &Listener{
		cfg:   cfg,
		out:   out,
		stats: st,
		open:  OpenSerial,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Listen binds the UDP port. Run calls it when needed; calling it first
// lets the caller learn the bound address.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", l.cfg.UDPPort))
	if err != nil {
		return fmt.Errorf("failed to listen on udp port %d: %w", l.cfg.UDPPort, err)
	}
	l.conn = conn
	log.Info().Str("addr", conn.LocalAddr().String()).Msg("Listening for AIS datagrams")
	return nil
}

// Addr returns the bound UDP address, or nil before Listen
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Run reads the input until the context is done or the source fails
func (l *Listener) Run(ctx context.Context) error {
	if l.cfg.SerialDevice != "" {
		return l.runStream(ctx)
	}
	return l.runPacket(ctx)
}

func (l *Listener) runPacket(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	conn := l.conn

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	buffer := make([]byte, l.cfg.UDPSize)
	for {
		n, addr, err := conn.ReadFrom(buffer)
		receipt := time.Now()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrStreamRead, err)
		}

		dg := types.RawDatagram{
			ReceiptTime: receipt,
			Data:        make([]byte, n),
		}
		copy(dg.Data, buffer[:n])
		if udp, ok := addr.(*net.UDPAddr); ok {
			dg.SourceAddress = udp.IP.String()
			dg.SourcePort = udp.Port
		}

		if err := l.publish(ctx, dg); err != nil {
			return nil
		}
	}
}

func (l *Listener) runStream(ctx context.Context) error {
	stream, err := l.open(l.cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", l.cfg.SerialDevice, err)
	}
	log.Info().Str("device", l.cfg.SerialDevice).Int("baud", l.cfg.SerialBaudRate).Msg("Reading AIS stream")

	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()
	defer stream.Close()

	buffer := make([]byte, streamBufferSize)
	for {
		n, err := stream.Read(buffer)
		receipt := time.Now()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: %v", ErrStreamRead, l.cfg.SerialDevice, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrStreamClosed, l.cfg.SerialDevice)
		}

		dg := types.RawDatagram{ReceiptTime: receipt, Data: make([]byte, n)}
		copy(dg.Data, buffer[:n])
		if err := l.publish(ctx, dg); err != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s", ErrStreamClosed, l.cfg.SerialDevice)
		}
	}
}

func (l *Listener) publish(ctx context.Context, dg types.RawDatagram) error {
	if l.stats != nil {
		l.stats.IncrementDatagrams()
		l.stats.UpdateLastMessageTime()
	}
	log.Debug().Int("bytes", len(dg.Data)).Str("source", dg.SourceAddress).Msg("Received datagram")
	return l.out.Publish(ctx, dg)
}

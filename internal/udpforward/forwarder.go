package udpforward

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// Forwarder sends each record as one JSON datagram to every target
type Forwarder struct {
	conns []*net.UDPConn
}

// New resolves every host:port target and opens a socket for each
func New(targets []string) (*Forwarder, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no forward targets configured")
	}

	f := &Forwarder{}
	for _, target := range targets {
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", target, err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to dial %s: %w", target, err)
		}
		log.Info().Str("target", addr.String()).Msg("Forwarding vessel records")
		f.conns = append(f.conns, conn)
	}
	return f, nil
}

// Send writes msg to every target. A failing target does not stop the others.
func (f *Forwarder) Send(_ context.Context, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	var errs []error
	for _, conn := range f.conns {
		if _, err := conn.Write(data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", conn.RemoteAddr(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every socket
func (f *Forwarder) Close() error {
	var errs []error
	for _, conn := range f.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.conns = nil
	return errors.Join(errs...)
}

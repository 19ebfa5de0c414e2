// Command replay reads stored raw datagrams from PostgreSQL and sends them
// to a UDP port, or through a pseudo terminal, at their original pace or faster.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/db"
	"github.com/saviobatista/ais-receiver/internal/logging"
)

// serialDelay is the wait before the first record on a pseudo terminal when no -delay is given
const serialDelay = 10 * time.Second

func main() {
	dbURL := flag.String("db", os.Getenv("DB_CONN_STR"), "Database connection string")
	table := flag.String("table", db.DefaultRawTable, "Raw datagram table to read from")
	address := flag.String("address", "127.0.0.1", "Address to send datagrams to")
	port := flag.Int("port", 0, "UDP port to send datagrams to")
	serial := flag.Bool("serial", false, "Send through a pseudo terminal instead of UDP")
	rate := flag.Float64("rate", 1, "Speed up factor relative to the recorded pace")
	count := flag.Int("count", 0, "Number of records to replay, 0 for all")
	skip := flag.Int("skip", 0, "Number of records to skip")
	delay := flag.Duration("delay", 0, "Wait before sending the first record")
	repeat := flag.Int("repeat", 1, "Number of passes over the records")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logging.Setup(*logLevel, true)

	switch {
	case *dbURL == "":
		log.Fatal().Msg("No database given, set -db or DB_CONN_STR")
	case *serial && *port != 0:
		log.Fatal().Msg("Use either -port or -serial, not both")
	case !*serial && (*port < 1 || *port > 65535):
		log.Fatal().Int("port", *port).Msg("A UDP port between 1 and 65535 is required")
	case *rate <= 0:
		log.Fatal().Float64("rate", *rate).Msg("Rate must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.New(*dbURL, db.WithTables(*table, ""))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer client.Close()
	if err := client.Connect(ctx, 30*time.Second); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	var out io.WriteCloser
	if *serial {
		master, device, err := openPTY()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open pseudo terminal")
		}
		out = master
		log.Info().Str("device", device).Msg("Sending to serial device")
		fmt.Println("Sending to serial device", device)
		// give the reader time to open the device
		if *delay < time.Second {
			*delay = serialDelay
		}
	} else {
		conn, err := net.Dial("udp", net.JoinHostPort(*address, strconv.Itoa(*port)))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open UDP socket")
		}
		out = conn
	}
	defer out.Close()

	send := func(b []byte) error {
		_, err := out.Write(b)
		return err
	}

	r := newReplayer(client, send, *rate, *skip, *count)
	if err := replay(ctx, r, *delay, *repeat); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Replay failed")
		stop()
		os.Exit(1)
	}
}

// replay waits delay, then runs repeat passes
func replay(ctx context.Context, r *replayer, delay time.Duration, repeat int) error {
	if delay > 0 {
		log.Info().Dur("delay", delay).Msg("Waiting before first record")
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	for pass := 1; pass <= max(repeat, 1); pass++ {
		sent, err := r.Run(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("pass", pass).Int("sent", sent).Msg("Replay pass complete")
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/db"
	"github.com/saviobatista/ais-receiver/internal/db/migrations"
	"github.com/saviobatista/ais-receiver/internal/logging"
)

// options selects what the command does
type options struct {
	rawTable string
	aisTable string
	rollback bool
	status   bool
}

func main() {
	dbURL := flag.String("db", os.Getenv("DB_CONN_STR"), "Database connection string")
	rawTable := flag.String("raw-table", db.DefaultRawTable, "Raw datagram table name")
	aisTable := flag.String("ais-table", db.DefaultAISTable, "Decoded message table name")
	rollback := flag.Bool("rollback", false, "Rollback the last migration")
	status := flag.Bool("status", false, "Print migration status and exit")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logging.Setup(*logLevel, true)

	if *dbURL == "" {
		log.Fatal().Msg("No database given, set -db or DB_CONN_STR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.New(*dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	opts := options{rawTable: *rawTable, aisTable: *aisTable, rollback: *rollback, status: *status}
	err = connectAndRun(ctx, client, opts, os.Stdout)
	client.Close()
	if err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}

func connectAndRun(ctx context.Context, client *db.Client, opts options, out io.Writer) error {
	if err := client.Connect(ctx, 30*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return run(ctx, client.DB(), opts, out)
}

// run applies, rolls back or reports the schema migrations
func run(ctx context.Context, conn *sql.DB, opts options, out io.Writer) error {
	migrator := migrations.New(conn)
	schema := migrations.Schema(opts.rawTable, opts.aisTable)

	switch {
	case opts.status:
		statuses, err := migrator.Status(ctx, schema)
		if err != nil {
			return err
		}
		return printStatus(out, statuses)
	case opts.rollback:
		return migrator.Rollback(ctx, schema)
	default:
		return migrator.Migrate(ctx, schema)
	}
}

func printStatus(out io.Writer, statuses []migrations.Status) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		if s.Applied {
			fmt.Fprintf(w, "%s\tapplied\t%s\n", s.Name, s.AppliedAt.UTC().Format(time.RFC3339))
		} else {
			fmt.Fprintf(w, "%s\tpending\t-\n", s.Name)
		}
	}
	return w.Flush()
}

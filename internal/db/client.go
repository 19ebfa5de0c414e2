package db

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// Default table names
const (
	DefaultRawTable = "raw"
	DefaultAISTable = "ais"
)

// Client writes raw datagrams, decoded fields and statistics to PostgreSQL
type Client struct {
	db       *sql.DB
	rawTable string
	aisTable string
}

// Option configures a Client
type Option func(*Client)

// WithTables overrides the raw and decoded table names
func WithTables(rawTable, aisTable string) Option {
	return func(c *Client) {
		if rawTable != "" {
			c.rawTable = rawTable
		}
		if aisTable != "" {
			c.aisTable = aisTable
		}
	}
}

// New creates a new database client
func New(connStr string, opts ...Option) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db, opts...), nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB, opts ...Option) *Client {
	c := &Client{db: db, rawTable: DefaultRawTable, aisTable: DefaultAISTable}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Connect pings the database with exponential backoff until it answers,
// the retries run out or the context is done
func (c *Client) Connect(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	return backoff.RetryNotify(func() error {
		return c.db.PingContext(ctx)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Database not ready")
	})
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreRawDatagram stores one datagram as received. Re-delivery is ignored.
func (c *Client) StoreRawDatagram(ctx context.Context, dg types.RawDatagram) error {
	query := fmt.Sprintf(`INSERT INTO %s (t, ip_addr, port, msg) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`, c.rawTable)

	var (
		addr sql.NullString
		port sql.NullInt64
	)
	if dg.SourceAddress != "" {
		addr = sql.NullString{String: dg.SourceAddress, Valid: true}
		port = sql.NullInt64{Int64: int64(dg.SourcePort), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, query, dg.Seconds(), addr, port, string(dg.Data))
	return err
}

// StoreMessage stores every field of a decoded message except mmsi and t as
// (mmsi, key, t, value) rows in one transaction. Re-delivery is ignored.
// Messages without mmsi or t cannot be keyed and are skipped.
func (c *Client) StoreMessage(ctx context.Context, msg types.Message) error {
	mmsi, ok := msg.MMSI()
	if !ok {
		log.Warn().Interface("message", msg).Msg("Message has no mmsi, not stored")
		return nil
	}
	t, ok := msg.Time()
	if !ok {
		log.Warn().Int64("mmsi", mmsi).Msg("Message has no time, not stored")
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (mmsi, key, t, value) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`, c.aisTable))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, key := range slices.Sorted(maps.Keys(msg)) {
		if key == types.FieldMMSI || key == types.FieldTime {
			continue
		}
		if _, err := stmt.ExecContext(ctx, mmsi, key, t, types.FormatValue(msg[key])); err != nil {
			return fmt.Errorf("failed to store %s for %d: %w", key, mmsi, err)
		}
	}

	return tx.Commit()
}

// RawRecord is one stored datagram
type RawRecord struct {
	T   float64
	Msg string
}

// RawRecords streams stored datagrams in time order. A count of zero or less
// means no limit.
func (c *Client) RawRecords(ctx context.Context, skip, count int, fn func(RawRecord) error) error {
	query := fmt.Sprintf(`SELECT t, msg FROM %s ORDER BY t`, c.rawTable)
	var args []interface{}
	if count > 0 {
		args = append(args, count)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if skip > 0 {
		args = append(args, skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r RawRecord
		if err := rows.Scan(&r.T, &r.Msg); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// StoreSystemStats stores a statistics snapshot
func (c *Client) StoreSystemStats(stats types.SystemStats) error {
	query := `
		INSERT INTO system_stats (
			time, run_id, datagrams, sentences, checksum_failures,
			malformed_sentences, ignored_sentences, decoded_messages,
			decode_failures, range_violations, expired_partials, sink_errors,
			active_vessels, pending_partials, message_types,
			processing_time_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	msgTypes := make([]int64, len(stats.MessageTypes))
	for i, v := range stats.MessageTypes {
		msgTypes[i] = int64(v)
	}

	_, err := c.db.Exec(query,
		stats.Time,
		stats.RunID,
		int64(stats.Datagrams),
		int64(stats.Sentences),
		int64(stats.ChecksumFailures),
		int64(stats.MalformedSentences),
		int64(stats.IgnoredSentences),
		int64(stats.DecodedMessages),
		int64(stats.DecodeFailures),
		int64(stats.RangeViolations),
		int64(stats.ExpiredPartials),
		int64(stats.SinkErrors),
		int64(stats.ActiveVessels),
		int64(stats.PendingPartials),
		pq.Array(msgTypes),
		stats.ProcessingTime.Milliseconds(),
		int64(stats.Uptime.Seconds()),
	)
	return err
}

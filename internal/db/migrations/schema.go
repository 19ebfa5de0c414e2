package migrations

import "fmt"

// Schema returns the receiver's migrations for the given raw and decoded table names
func Schema(rawTable, aisTable string) []*Migration {
	return []*Migration{
		initialSchema(rawTable, aisTable),
		indexes(rawTable, aisTable),
	}
}

func initialSchema(rawTable, aisTable string) *Migration {
	return &Migration{
		ID:   "001_initial_schema",
		Name: "001_initial_schema",
		UpSQL: fmt.Sprintf(`
		-- Raw datagrams as received
		CREATE TABLE IF NOT EXISTS %[1]s (
			t DOUBLE PRECISION NOT NULL,
			ip_addr TEXT,
			port INTEGER,
			msg TEXT NOT NULL,
			PRIMARY KEY (t, msg)
		);

		-- Decoded messages, one row per field
		CREATE TABLE IF NOT EXISTS %[2]s (
			mmsi BIGINT NOT NULL,
			key TEXT NOT NULL,
			t DOUBLE PRECISION NOT NULL,
			value TEXT,
			PRIMARY KEY (mmsi, key, t)
		);

		-- Pipeline statistics
		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			run_id UUID NOT NULL,
			datagrams BIGINT NOT NULL,
			sentences BIGINT NOT NULL,
			checksum_failures BIGINT NOT NULL,
			malformed_sentences BIGINT NOT NULL,
			ignored_sentences BIGINT NOT NULL,
			decoded_messages BIGINT NOT NULL,
			decode_failures BIGINT NOT NULL,
			range_violations BIGINT NOT NULL,
			expired_partials BIGINT NOT NULL,
			sink_errors BIGINT NOT NULL,
			active_vessels BIGINT NOT NULL,
			pending_partials BIGINT NOT NULL,
			message_types BIGINT[] NOT NULL,
			processing_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL,
			PRIMARY KEY (run_id, time)
		);
	`, rawTable, aisTable),
		DownSQL: fmt.Sprintf(`
		DROP TABLE IF EXISTS system_stats;
		DROP TABLE IF EXISTS %[2]s;
		DROP TABLE IF EXISTS %[1]s;
	`, rawTable, aisTable),
	}
}

func indexes(rawTable, aisTable string) *Migration {
	return &Migration{
		ID:   "002_time_indexes",
		Name: "002_time_indexes",
		UpSQL: fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%[1]s_t ON %[1]s (t);
		CREATE INDEX IF NOT EXISTS idx_%[2]s_t ON %[2]s (t);
		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time DESC);
	`, rawTable, aisTable),
		DownSQL: fmt.Sprintf(`
		DROP INDEX IF EXISTS idx_system_stats_time;
		DROP INDEX IF EXISTS idx_%[2]s_t;
		DROP INDEX IF EXISTS idx_%[1]s_t;
	`, rawTable, aisTable),
	}
}

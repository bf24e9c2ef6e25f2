package storage

import (
	"database/sql"
	"fmt"
)

// Timestamps are stored as INTEGER unix milliseconds so range queries and
// exact-instant comparisons do not depend on driver time formatting.
var migrations = []string{
	// Migration 1: readings and alerts
	`CREATE TABLE IF NOT EXISTS readings (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		value       INTEGER NOT NULL CHECK(value BETWEEN 20 AND 600),
		unit        TEXT NOT NULL DEFAULT 'mg/dL',
		trend       TEXT NOT NULL,
		trend_arrow TEXT NOT NULL,
		source      TEXT NOT NULL,
		ts          INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_readings_owner_ts ON readings(owner_id, ts);
	CREATE INDEX IF NOT EXISTS idx_readings_owner_source_ts ON readings(owner_id, source, ts);

	CREATE TABLE IF NOT EXISTS alerts (
		id                  TEXT PRIMARY KEY,
		owner_id            TEXT NOT NULL,
		type                TEXT NOT NULL,
		severity            TEXT NOT NULL,
		glucose_value       INTEGER NOT NULL,
		title               TEXT NOT NULL DEFAULT '',
		message             TEXT NOT NULL DEFAULT '',
		notified_recipients TEXT NOT NULL DEFAULT '[]',
		acknowledgments     TEXT NOT NULL DEFAULT '[]',
		status              TEXT NOT NULL CHECK(status IN ('active', 'acknowledged', 'resolved', 'expired')),
		created_at          INTEGER NOT NULL,
		expires_at          INTEGER NOT NULL,
		resolved_at         INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_owner_created ON alerts(owner_id, created_at);`,

	// Migration 2: provider sessions and profile data
	`CREATE TABLE IF NOT EXISTS provider_sessions (
		owner_id   TEXT NOT NULL,
		provider   TEXT NOT NULL,
		state      TEXT NOT NULL DEFAULT '{}',
		connected  INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (owner_id, provider)
	);

	CREATE TABLE IF NOT EXISTS threshold_settings (
		owner_id                 TEXT PRIMARY KEY,
		low                      INTEGER NOT NULL,
		high                     INTEGER NOT NULL,
		high_alert_delay_minutes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS care_relationships (
		id                  TEXT PRIMARY KEY,
		owner_id            TEXT NOT NULL,
		recipient_id        TEXT,
		status              TEXT NOT NULL CHECK(status IN ('pending', 'active', 'paused')),
		receive_low_alerts  INTEGER NOT NULL DEFAULT 0,
		receive_high_alerts INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_care_owner ON care_relationships(owner_id);

	CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id  TEXT NOT NULL,
		category TEXT NOT NULL,
		enabled  INTEGER NOT NULL,
		PRIMARY KEY (user_id, category)
	);`,

	// Migration 3: chat and daily summaries
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id               TEXT PRIMARY KEY,
		conversation_ref TEXT NOT NULL,
		sender_id        TEXT NOT NULL,
		text             TEXT NOT NULL,
		kind             TEXT NOT NULL,
		alert_id         TEXT,
		created_at       INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_conversation ON chat_messages(conversation_ref, created_at);

	CREATE TABLE IF NOT EXISTS daily_summaries (
		owner_id          TEXT NOT NULL,
		day               INTEGER NOT NULL,
		count             INTEGER NOT NULL,
		mean              REAL NOT NULL,
		min               INTEGER NOT NULL,
		max               INTEGER NOT NULL,
		time_in_range_pct REAL NOT NULL,
		PRIMARY KEY (owner_id, day)
	);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}

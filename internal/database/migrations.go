package database

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// NotifyChannel is the LISTEN/NOTIFY channel fed by the row change trigger.
const NotifyChannel = "row_changes"

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS profiles (
				id UUID PRIMARY KEY,
				username VARCHAR(30) UNIQUE NOT NULL,
				avatar_url TEXT,
				bio TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS profiles;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS streams (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				user_id UUID NOT NULL,
				title VARCHAR(100) NOT NULL,
				category TEXT NOT NULL DEFAULT 'gaming' CHECK (category IN ('gaming', 'music', 'coding')),
				stream_key TEXT,
				ingest_url TEXT,
				playback_id TEXT,
				livepeer_stream_id TEXT,
				is_live BOOLEAN NOT NULL DEFAULT FALSE,
				last_event_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_streams_playback_id ON streams(playback_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_streams_user ON streams(user_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_streams_live ON streams(created_at DESC) WHERE is_live;
		`,
		Down: `
			DROP TABLE IF EXISTS streams;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				user_id UUID NOT NULL,
				stream_id UUID NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
				content TEXT NOT NULL CHECK (char_length(content) <= 500),
				hidden BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_messages_visible ON messages(stream_id, created_at DESC) WHERE hidden = FALSE;
		`,
		Down: `
			DROP TABLE IF EXISTS messages;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS videos (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				stream_id UUID NOT NULL UNIQUE REFERENCES streams(id) ON DELETE CASCADE,
				user_id UUID NOT NULL,
				playback_url TEXT NOT NULL,
				duration DOUBLE PRECISION,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_videos_user ON videos(user_id, created_at DESC);
		`,
		Down: `
			DROP TABLE IF EXISTS videos;
		`,
	},
	{
		Version: 5,
		Up: `
			CREATE TABLE IF NOT EXISTS moderation_logs (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				stream_id UUID,
				message_id UUID,
				action VARCHAR(50) NOT NULL,
				target_user_id UUID,
				reason TEXT,
				metadata JSONB,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_moderation_logs_stream ON moderation_logs(stream_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS webhook_events (
				event_id TEXT PRIMARY KEY,
				event_type TEXT NOT NULL,
				received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS webhook_events;
			DROP TABLE IF EXISTS moderation_logs;
		`,
	},
	{
		Version: 6,
		Up: `
			CREATE OR REPLACE FUNCTION notify_row_change() RETURNS trigger AS $$
			DECLARE
				rec JSONB;
				old_rec JSONB;
			BEGIN
				IF TG_OP <> 'DELETE' THEN
					rec := to_jsonb(NEW) - 'stream_key';
				END IF;
				IF TG_OP <> 'INSERT' THEN
					old_rec := to_jsonb(OLD) - 'stream_key';
				END IF;
				PERFORM pg_notify('` + NotifyChannel + `', json_build_object(
					'type', TG_OP,
					'table', TG_TABLE_NAME,
					'record', rec,
					'old_record', old_rec
				)::text);
				RETURN NULL;
			END;
			$$ LANGUAGE plpgsql;

			DROP TRIGGER IF EXISTS messages_row_change ON messages;
			CREATE TRIGGER messages_row_change AFTER INSERT OR UPDATE OR DELETE ON messages
				FOR EACH ROW EXECUTE FUNCTION notify_row_change();

			DROP TRIGGER IF EXISTS streams_row_change ON streams;
			CREATE TRIGGER streams_row_change AFTER INSERT OR UPDATE ON streams
				FOR EACH ROW EXECUTE FUNCTION notify_row_change();

			DROP TRIGGER IF EXISTS videos_row_change ON videos;
			CREATE TRIGGER videos_row_change AFTER INSERT OR UPDATE ON videos
				FOR EACH ROW EXECUTE FUNCTION notify_row_change();
		`,
		Down: `
			DROP TRIGGER IF EXISTS videos_row_change ON videos;
			DROP TRIGGER IF EXISTS streams_row_change ON streams;
			DROP TRIGGER IF EXISTS messages_row_change ON messages;
			DROP FUNCTION IF EXISTS notify_row_change();
		`,
	},
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// RunMigrations applies every migration newer than the recorded version.
func RunMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range sortedMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info().Int("version", migration.Version).Msg("running migration")

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// RollbackLast reverts the most recently applied migration. It returns the
// reverted version, or 0 when nothing was applied.
func RollbackLast(db *sql.DB) (int, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return 0, err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return 0, err
	}
	if currentVersion == 0 {
		return 0, nil
	}

	var target *Migration
	for _, m := range Migrations {
		if m.Version == currentVersion {
			m := m
			target = &m
			break
		}
	}
	if target == nil {
		return 0, fmt.Errorf("migration %d is not known to this binary", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(target.Down); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to revert migration %d: %w", target.Version, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", target.Version); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to unrecord migration %d: %w", target.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rollback %d: %w", target.Version, err)
	}
	return target.Version, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

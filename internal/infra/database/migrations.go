package database

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations create the schema. Every statement is idempotent so Migrate runs on each start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS npc_definitions (
		id                   BIGSERIAL PRIMARY KEY,
		guild_id             BIGINT NOT NULL,
		name                 TEXT NOT NULL,
		normalized_name      TEXT NOT NULL,
		zone_name            TEXT,
		normalized_zone      TEXT NOT NULL DEFAULT '', -- NormalizeName(zone_name), '' when zone-less
		min_respawn_minutes  INTEGER,
		max_respawn_minutes  INTEGER,
		is_raid_target       BOOLEAN NOT NULL DEFAULT FALSE,
		has_instance_version BOOLEAN NOT NULL DEFAULT FALSE,
		content_flag         TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS npc_definitions_guild_name_zone_key
		ON npc_definitions (guild_id, normalized_name, normalized_zone)`,
	`CREATE TABLE IF NOT EXISTS npc_kill_records (
		id            BIGSERIAL PRIMARY KEY,
		guild_id      BIGINT NOT NULL,
		definition_id BIGINT NOT NULL REFERENCES npc_definitions(id) ON DELETE CASCADE,
		killed_at     TIMESTAMPTZ NOT NULL,
		killer_name   TEXT,
		notes         TEXT,
		is_instance   BOOLEAN NOT NULL DEFAULT FALSE,
		raid_id       BIGINT,
		log_signature TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT npc_kill_records_signature_key UNIQUE (guild_id, log_signature)
	)`,
	`CREATE INDEX IF NOT EXISTS npc_kill_records_pair_idx
		ON npc_kill_records (definition_id, is_instance, killed_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS npc_kill_clarifications (
		id                      BIGSERIAL PRIMARY KEY,
		guild_id                BIGINT NOT NULL,
		raid_id                 BIGINT,
		clarification_type      TEXT NOT NULL,
		raw_name                TEXT NOT NULL,
		normalized_name         TEXT NOT NULL,
		killed_at               TIMESTAMPTZ NOT NULL,
		killer_name             TEXT,
		zone_hint               TEXT,
		instance_hint           BOOLEAN,
		candidate_definition_id BIGINT REFERENCES npc_definitions(id) ON DELETE CASCADE,
		zone_options            TEXT[] NOT NULL DEFAULT '{}',
		log_signature           TEXT NOT NULL,
		resolved_at             TIMESTAMPTZ,
		resolved_by_id          BIGINT,
		resolution_outcome      TEXT,
		resolved_kill_record_id BIGINT REFERENCES npc_kill_records(id) ON DELETE SET NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT npc_kill_clarifications_signature_key UNIQUE (guild_id, log_signature)
	)`,
	`CREATE INDEX IF NOT EXISTS npc_kill_clarifications_live_idx
		ON npc_kill_clarifications (guild_id, normalized_name) WHERE resolved_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS npc_respawn_subscriptions (
		id             BIGSERIAL PRIMARY KEY,
		definition_id  BIGINT NOT NULL REFERENCES npc_definitions(id) ON DELETE CASCADE,
		user_id        BIGINT NOT NULL,
		is_instance    BOOLEAN NOT NULL DEFAULT FALSE,
		notify_minutes INTEGER NOT NULL DEFAULT 0,
		enabled        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT npc_respawn_subscriptions_key UNIQUE (definition_id, user_id, is_instance)
	)`,
	`CREATE TABLE IF NOT EXISTS npc_respawn_notifications (
		id                  BIGSERIAL PRIMARY KEY,
		definition_id       BIGINT NOT NULL REFERENCES npc_definitions(id) ON DELETE CASCADE,
		is_instance         BOOLEAN NOT NULL DEFAULT FALSE,
		last_kill_record_id BIGINT NOT NULL REFERENCES npc_kill_records(id) ON DELETE CASCADE,
		window_notified_at  TIMESTAMPTZ,
		up_notified_at      TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT npc_respawn_notifications_pair_key UNIQUE (definition_id, is_instance)
	)`,
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	txn, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	for i, stmt := range migrations {
		if _, err := txn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return txn.Commit()
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"npc_respawn_tracker/internal/domain/npc"
)

const killColumns = `id, guild_id, definition_id, killed_at, killer_name, notes, is_instance, raid_id, log_signature, created_at`

type PostgresKillRepository struct {
	db *sql.DB
}

func NewPostgresKillRepository(db *sql.DB) *PostgresKillRepository {
	return &PostgresKillRepository{db: db}
}

// Create relies on the (guild_id, log_signature) constraint: the first writer wins and
// later writers of the same observation get created == false.
func (r *PostgresKillRepository) Create(ctx context.Context, k *npc.KillRecord) (bool, error) {
	query := `INSERT INTO npc_kill_records (guild_id, definition_id, killed_at, killer_name, notes, is_instance, raid_id, log_signature)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               ON CONFLICT ON CONSTRAINT npc_kill_records_signature_key DO NOTHING
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query,
		k.GuildID, k.DefinitionID, k.KilledAt.UTC(), k.KillerName, k.Notes, k.IsInstance, k.RaidID, k.LogSignature,
	).Scan(&k.ID, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error creating npc kill record: %w", err)
	}
	return true, nil
}

func (r *PostgresKillRepository) GetByID(ctx context.Context, id int64) (*npc.KillRecord, error) {
	query := `SELECT ` + killColumns + ` FROM npc_kill_records WHERE id = $1`
	k, err := scanKill(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKillRecordNotFound
		}
		return nil, fmt.Errorf("error getting npc kill record by ID: %w", err)
	}
	return k, nil
}

func (r *PostgresKillRepository) ExistsBySignature(ctx context.Context, guildID int64, signature string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM npc_kill_records WHERE guild_id = $1 AND log_signature = $2)`
	if err := r.db.QueryRowContext(ctx, query, guildID, signature).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking kill signature: %w", err)
	}
	return exists, nil
}

func (r *PostgresKillRepository) LatestForPair(ctx context.Context, pair npc.Pair) (*npc.KillRecord, error) {
	query := `SELECT ` + killColumns + ` FROM npc_kill_records
               WHERE definition_id = $1 AND is_instance = $2
               ORDER BY killed_at DESC, id DESC LIMIT 1`
	k, err := scanKill(r.db.QueryRowContext(ctx, query, pair.DefinitionID, pair.IsInstance))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKillRecordNotFound
		}
		return nil, fmt.Errorf("error getting latest kill for pair: %w", err)
	}
	return k, nil
}

func (r *PostgresKillRepository) ListAnchors(ctx context.Context) ([]*npc.KillRecord, error) {
	query := `SELECT DISTINCT ON (definition_id, is_instance) ` + killColumns + `
               FROM npc_kill_records
               ORDER BY definition_id, is_instance, killed_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing anchor kills: %w", err)
	}
	defer rows.Close()
	return scanKills(rows)
}

func (r *PostgresKillRepository) ListAnchorsByGuild(ctx context.Context, guildID int64) ([]*npc.KillRecord, error) {
	query := `SELECT DISTINCT ON (definition_id, is_instance) ` + killColumns + `
               FROM npc_kill_records WHERE guild_id = $1
               ORDER BY definition_id, is_instance, killed_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("error listing anchor kills by guild: %w", err)
	}
	defer rows.Close()
	return scanKills(rows)
}

func (r *PostgresKillRepository) ListByDefinition(ctx context.Context, definitionID int64, limit int) ([]*npc.KillRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + killColumns + ` FROM npc_kill_records
               WHERE definition_id = $1 ORDER BY killed_at DESC, id DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, definitionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing kills by definition: %w", err)
	}
	defer rows.Close()
	return scanKills(rows)
}

func scanKill(row rowScanner) (*npc.KillRecord, error) {
	k := &npc.KillRecord{}
	err := row.Scan(&k.ID, &k.GuildID, &k.DefinitionID, &k.KilledAt, &k.KillerName, &k.Notes,
		&k.IsInstance, &k.RaidID, &k.LogSignature, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func scanKills(rows *sql.Rows) ([]*npc.KillRecord, error) {
	kills := make([]*npc.KillRecord, 0)
	for rows.Next() {
		k, err := scanKill(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning npc kill row: %w", err)
		}
		kills = append(kills, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating npc kill rows: %w", err)
	}
	return kills, nil
}

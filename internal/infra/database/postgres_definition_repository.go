package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"npc_respawn_tracker/internal/domain/npc"
)

const definitionColumns = `id, guild_id, name, normalized_name, zone_name, min_respawn_minutes, max_respawn_minutes,
	is_raid_target, has_instance_version, content_flag, created_at, updated_at`

type PostgresDefinitionRepository struct {
	db *sql.DB
}

func NewPostgresDefinitionRepository(db *sql.DB) *PostgresDefinitionRepository {
	return &PostgresDefinitionRepository{db: db}
}

func (r *PostgresDefinitionRepository) Create(ctx context.Context, d *npc.Definition) error {
	query := `INSERT INTO npc_definitions (guild_id, name, normalized_name, zone_name, normalized_zone,
                   min_respawn_minutes, max_respawn_minutes, is_raid_target, has_instance_version, content_flag)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               RETURNING id, created_at, updated_at`
	d.NormalizedName = npc.NormalizeName(d.Name)
	err := r.db.QueryRowContext(ctx, query,
		d.GuildID, d.Name, d.NormalizedName, d.ZoneName, d.NormalizedZone(), d.MinRespawnMinutes, d.MaxRespawnMinutes,
		d.IsRaidTarget, d.HasInstanceVersion, d.ContentFlag,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "npc_definitions_guild_name_zone_key") {
			return ErrDuplicateDefinition
		}
		return fmt.Errorf("error creating npc definition: %w", err)
	}
	return nil
}

func (r *PostgresDefinitionRepository) GetByID(ctx context.Context, id int64) (*npc.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM npc_definitions WHERE id = $1`
	d, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("error getting npc definition by ID: %w", err)
	}
	return d, nil
}

func (r *PostgresDefinitionRepository) ListByNormalizedName(ctx context.Context, guildID int64, normalizedName string) ([]*npc.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM npc_definitions
               WHERE guild_id = $1 AND normalized_name = $2 ORDER BY zone_name NULLS FIRST, id`
	rows, err := r.db.QueryContext(ctx, query, guildID, normalizedName)
	if err != nil {
		return nil, fmt.Errorf("error listing npc definitions by name: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (r *PostgresDefinitionRepository) ListByGuild(ctx context.Context, guildID int64) ([]*npc.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM npc_definitions WHERE guild_id = $1 ORDER BY name, zone_name NULLS FIRST`
	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("error listing npc definitions by guild: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func (r *PostgresDefinitionRepository) Update(ctx context.Context, d *npc.Definition) error {
	query := `UPDATE npc_definitions
               SET name = $1, normalized_name = $2, zone_name = $3, normalized_zone = $4, min_respawn_minutes = $5,
                   max_respawn_minutes = $6, is_raid_target = $7, has_instance_version = $8, content_flag = $9,
                   updated_at = NOW()
               WHERE id = $10
               RETURNING updated_at`
	d.NormalizedName = npc.NormalizeName(d.Name)
	err := r.db.QueryRowContext(ctx, query,
		d.Name, d.NormalizedName, d.ZoneName, d.NormalizedZone(), d.MinRespawnMinutes, d.MaxRespawnMinutes,
		d.IsRaidTarget, d.HasInstanceVersion, d.ContentFlag, d.ID,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDefinitionNotFound
		}
		if isUniqueViolation(err, "npc_definitions_guild_name_zone_key") {
			return ErrDuplicateDefinition
		}
		return fmt.Errorf("error updating npc definition: %w", err)
	}
	return nil
}

func (r *PostgresDefinitionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM npc_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting npc definition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading deleted rows: %w", err)
	}
	if n == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*npc.Definition, error) {
	d := &npc.Definition{}
	err := row.Scan(&d.ID, &d.GuildID, &d.Name, &d.NormalizedName, &d.ZoneName, &d.MinRespawnMinutes,
		&d.MaxRespawnMinutes, &d.IsRaidTarget, &d.HasInstanceVersion, &d.ContentFlag, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanDefinitions(rows *sql.Rows) ([]*npc.Definition, error) {
	defs := make([]*npc.Definition, 0)
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning npc definition row: %w", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating npc definition rows: %w", err)
	}
	return defs, nil
}

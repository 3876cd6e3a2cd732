package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"npc_respawn_tracker/internal/domain/npc"

	"github.com/lib/pq" // For pq.Array
)

const clarificationColumns = `id, guild_id, raid_id, clarification_type, raw_name, normalized_name, killed_at,
	killer_name, zone_hint, instance_hint, candidate_definition_id, zone_options, log_signature,
	resolved_at, resolved_by_id, resolution_outcome, resolved_kill_record_id, created_at`

type PostgresClarificationRepository struct {
	db *sql.DB
}

func NewPostgresClarificationRepository(db *sql.DB) *PostgresClarificationRepository {
	return &PostgresClarificationRepository{db: db}
}

// Create is a no-op (created == false) when the guild already has a clarification
// for the signature, including resolved ones.
func (r *PostgresClarificationRepository) Create(ctx context.Context, c *npc.PendingClarification) (bool, error) {
	query := `INSERT INTO npc_kill_clarifications (guild_id, raid_id, clarification_type, raw_name, normalized_name,
                   killed_at, killer_name, zone_hint, instance_hint, candidate_definition_id, zone_options, log_signature)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
               ON CONFLICT ON CONSTRAINT npc_kill_clarifications_signature_key DO NOTHING
               RETURNING id, created_at`
	zones := c.ZoneOptions
	if zones == nil {
		zones = []string{}
	}
	err := r.db.QueryRowContext(ctx, query,
		c.GuildID, c.RaidID, c.Type, c.RawName, c.NormalizedName, c.KilledAt.UTC(), c.KillerName,
		c.ZoneHint, c.InstanceHint, c.CandidateDefinitionID, pq.Array(zones), c.LogSignature,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error creating npc kill clarification: %w", err)
	}
	return true, nil
}

func (r *PostgresClarificationRepository) GetByID(ctx context.Context, id int64) (*npc.PendingClarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM npc_kill_clarifications WHERE id = $1`
	c, err := scanClarification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClarificationNotFound
		}
		return nil, fmt.Errorf("error getting clarification by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresClarificationRepository) GetBySignature(ctx context.Context, guildID int64, signature string) (*npc.PendingClarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM npc_kill_clarifications WHERE guild_id = $1 AND log_signature = $2`
	c, err := scanClarification(r.db.QueryRowContext(ctx, query, guildID, signature))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClarificationNotFound
		}
		return nil, fmt.Errorf("error getting clarification by signature: %w", err)
	}
	return c, nil
}

func (r *PostgresClarificationRepository) ListLive(ctx context.Context, guildID int64) ([]*npc.PendingClarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM npc_kill_clarifications
               WHERE guild_id = $1 AND resolved_at IS NULL ORDER BY killed_at, id`
	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("error listing live clarifications: %w", err)
	}
	defer rows.Close()
	return scanClarifications(rows)
}

func (r *PostgresClarificationRepository) ListLiveByName(ctx context.Context, guildID int64, normalizedName string) ([]*npc.PendingClarification, error) {
	query := `SELECT ` + clarificationColumns + ` FROM npc_kill_clarifications
               WHERE guild_id = $1 AND normalized_name = $2 AND resolved_at IS NULL ORDER BY killed_at, id`
	rows, err := r.db.QueryContext(ctx, query, guildID, normalizedName)
	if err != nil {
		return nil, fmt.Errorf("error listing live clarifications by name: %w", err)
	}
	defer rows.Close()
	return scanClarifications(rows)
}

func (r *PostgresClarificationRepository) Resolve(ctx context.Context, id int64, res npc.Resolution) (bool, error) {
	query := `UPDATE npc_kill_clarifications
               SET resolved_at = $2, resolved_by_id = $3, resolution_outcome = $4, resolved_kill_record_id = $5
               WHERE id = $1 AND resolved_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, res.At.UTC(), res.ByID, res.Outcome, res.KillRecordID)
	if err != nil {
		return false, fmt.Errorf("error resolving clarification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading resolved rows: %w", err)
	}
	return n == 1, nil
}

func scanClarification(row rowScanner) (*npc.PendingClarification, error) {
	c := &npc.PendingClarification{}
	var (
		zones        pq.StringArray
		resolvedAt   sql.NullTime
		resolvedBy   sql.NullInt64
		outcome      sql.NullString
		resolvedKill sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.GuildID, &c.RaidID, &c.Type, &c.RawName, &c.NormalizedName, &c.KilledAt,
		&c.KillerName, &c.ZoneHint, &c.InstanceHint, &c.CandidateDefinitionID, &zones, &c.LogSignature,
		&resolvedAt, &resolvedBy, &outcome, &resolvedKill, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.ZoneOptions = []string(zones)
	if resolvedAt.Valid {
		c.Resolution = &npc.Resolution{
			ByID:         resolvedBy.Int64,
			At:           resolvedAt.Time,
			Outcome:      npc.ResolutionOutcome(outcome.String),
			KillRecordID: resolvedKill,
		}
	}
	return c, nil
}

func scanClarifications(rows *sql.Rows) ([]*npc.PendingClarification, error) {
	out := make([]*npc.PendingClarification, 0)
	for rows.Next() {
		c, err := scanClarification(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning clarification row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clarification rows: %w", err)
	}
	return out, nil
}

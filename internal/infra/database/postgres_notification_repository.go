// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
)

const notificationColumns = `id, definition_id, is_instance, last_kill_record_id, window_notified_at, up_notified_at, updated_at`

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Get(ctx context.Context, pair npc.Pair) (*npc.NotificationState, error) {
	query := `SELECT ` + notificationColumns + ` FROM npc_respawn_notifications WHERE definition_id = $1 AND is_instance = $2`
	s, err := scanNotificationState(r.db.QueryRowContext(ctx, query, pair.DefinitionID, pair.IsInstance))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationStateNotFound
		}
		return nil, fmt.Errorf("error getting notification state: %w", err)
	}
	return s, nil
}

// Reanchor upserts the pair's row. The anchor only moves forward: the conflict
// branch fires when killID is later by (killed_at, id) than the current anchor,
// and that is also when both sent timestamps are cleared. The returned row may
// therefore be anchored to a newer kill than killID.
func (r *PostgresNotificationRepository) Reanchor(ctx context.Context, pair npc.Pair, killID int64) (*npc.NotificationState, error) {
	query := `INSERT INTO npc_respawn_notifications (definition_id, is_instance, last_kill_record_id)
               VALUES ($1, $2, $3)
               ON CONFLICT ON CONSTRAINT npc_respawn_notifications_pair_key DO UPDATE
               SET last_kill_record_id = EXCLUDED.last_kill_record_id,
                   window_notified_at = NULL,
                   up_notified_at = NULL,
                   updated_at = NOW()
               WHERE npc_respawn_notifications.last_kill_record_id <> EXCLUDED.last_kill_record_id
                 AND NOT EXISTS (
                     SELECT 1 FROM npc_kill_records cur, npc_kill_records nxt
                     WHERE cur.id = npc_respawn_notifications.last_kill_record_id
                       AND nxt.id = EXCLUDED.last_kill_record_id
                       AND (cur.killed_at, cur.id) > (nxt.killed_at, nxt.id))
               RETURNING ` + notificationColumns
	s, err := scanNotificationState(r.db.QueryRowContext(ctx, query, pair.DefinitionID, pair.IsInstance, killID))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error re-anchoring notification state: %w", err)
	}
	// Already anchored to killID or to a later kill.
	return r.Get(ctx, pair)
}

func (r *PostgresNotificationRepository) MarkWindowNotified(ctx context.Context, pair npc.Pair, killID int64, at time.Time) (bool, error) {
	query := `UPDATE npc_respawn_notifications SET window_notified_at = $4, updated_at = NOW()
               WHERE definition_id = $1 AND is_instance = $2 AND last_kill_record_id = $3 AND window_notified_at IS NULL`
	return r.mark(ctx, query, pair, killID, at)
}

func (r *PostgresNotificationRepository) MarkUpNotified(ctx context.Context, pair npc.Pair, killID int64, at time.Time) (bool, error) {
	query := `UPDATE npc_respawn_notifications SET up_notified_at = $4, updated_at = NOW()
               WHERE definition_id = $1 AND is_instance = $2 AND last_kill_record_id = $3 AND up_notified_at IS NULL`
	return r.mark(ctx, query, pair, killID, at)
}

func (r *PostgresNotificationRepository) mark(ctx context.Context, query string, pair npc.Pair, killID int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, pair.DefinitionID, pair.IsInstance, killID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("error marking notification sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading marked rows: %w", err)
	}
	return n == 1, nil
}

func scanNotificationState(row rowScanner) (*npc.NotificationState, error) {
	s := &npc.NotificationState{}
	if err := row.Scan(&s.ID, &s.DefinitionID, &s.IsInstance, &s.LastKillRecordID, &s.WindowNotifiedAt, &s.UpNotifiedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"npc_respawn_tracker/internal/domain/npc"
)

const subscriptionColumns = `id, definition_id, user_id, is_instance, notify_minutes, enabled, created_at, updated_at`

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

// Upsert creates the subscription or updates lead time and enabled flag of an existing one.
func (r *PostgresSubscriptionRepository) Upsert(ctx context.Context, s *npc.Subscription) error {
	query := `INSERT INTO npc_respawn_subscriptions (definition_id, user_id, is_instance, notify_minutes, enabled)
               VALUES ($1, $2, $3, $4, $5)
               ON CONFLICT ON CONSTRAINT npc_respawn_subscriptions_key
               DO UPDATE SET notify_minutes = EXCLUDED.notify_minutes, enabled = EXCLUDED.enabled, updated_at = NOW()
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.DefinitionID, s.UserID, s.IsInstance, s.NotifyMinutes, s.Enabled).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting respawn subscription: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepository) Get(ctx context.Context, definitionID, userID int64, isInstance bool) (*npc.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM npc_respawn_subscriptions
               WHERE definition_id = $1 AND user_id = $2 AND is_instance = $3`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, definitionID, userID, isInstance))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("error getting respawn subscription: %w", err)
	}
	return s, nil
}

func (r *PostgresSubscriptionRepository) ListEnabledByPair(ctx context.Context, pair npc.Pair) ([]*npc.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM npc_respawn_subscriptions
               WHERE definition_id = $1 AND is_instance = $2 AND enabled = TRUE ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, pair.DefinitionID, pair.IsInstance)
	if err != nil {
		return nil, fmt.Errorf("error listing enabled subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) ListByUser(ctx context.Context, userID int64) ([]*npc.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM npc_respawn_subscriptions WHERE user_id = $1 ORDER BY definition_id, is_instance`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (r *PostgresSubscriptionRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE npc_respawn_subscriptions SET enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("error updating subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading updated rows: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row rowScanner) (*npc.Subscription, error) {
	s := &npc.Subscription{}
	if err := row.Scan(&s.ID, &s.DefinitionID, &s.UserID, &s.IsInstance, &s.NotifyMinutes, &s.Enabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

func scanSubscriptions(rows *sql.Rows) ([]*npc.Subscription, error) {
	subs := make([]*npc.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscription row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

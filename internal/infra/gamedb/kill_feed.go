package gamedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FeedKill is one row of the game server's npc_kill_feed view.
type FeedKill struct {
	ID              int64
	NPCName         string
	ZoneName        sql.NullString
	KillerName      sql.NullString
	KilledAt        time.Time
	InstanceVersion int // > 0 for instanced spawns
}

// IsInstance reports whether the kill happened in an instanced copy of the zone.
func (f FeedKill) IsInstance() bool {
	return f.InstanceVersion > 0
}

// Querier is satisfied by *sql.Conn and *sql.DB.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RecentKills reads feed rows killed at or after since, oldest first.
func RecentKills(ctx context.Context, q Querier, since time.Time) ([]FeedKill, error) {
	query := `SELECT id, npc_name, zone_name, killer_name, killed_at, instance_version
	          FROM npc_kill_feed WHERE killed_at >= ? ORDER BY killed_at, id`
	rows, err := q.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("error querying npc kill feed: %w", err)
	}
	defer rows.Close()

	kills := make([]FeedKill, 0)
	for rows.Next() {
		var k FeedKill
		if err := rows.Scan(&k.ID, &k.NPCName, &k.ZoneName, &k.KillerName, &k.KilledAt, &k.InstanceVersion); err != nil {
			return nil, fmt.Errorf("error scanning npc kill feed row: %w", err)
		}
		kills = append(kills, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating npc kill feed rows: %w", err)
	}
	return kills, nil
}

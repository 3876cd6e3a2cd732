package gamedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrSpawnNotFound is returned when the game has no spawn point for the NPC.
var ErrSpawnNotFound = errors.New("no spawn point found for npc")

// SpawnLookup reads respawn timing from the game's spawn tables on demand.
type SpawnLookup struct {
	pool *Pool
}

func NewSpawnLookup(pool *Pool) *SpawnLookup {
	return &SpawnLookup{pool: pool}
}

// RespawnMinutes returns respawntime -/+ variance, converted from seconds to whole
// minutes. The NPC is matched by its game name ("Lord Nagafen" or "Lord_Nagafen");
// zoneName narrows by zone short name when set.
func (l *SpawnLookup) RespawnMinutes(ctx context.Context, npcName, zoneName string) (int, int, error) {
	conn, err := l.pool.Conn(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer conn.Close()

	gameName := strings.ReplaceAll(strings.TrimSpace(npcName), " ", "_")
	query := `SELECT s2.respawntime, s2.variance
	          FROM npc_types nt
	          JOIN spawnentry se ON se.npcID = nt.id
	          JOIN spawn2 s2 ON s2.spawngroupID = se.spawngroupID
	          WHERE (nt.name = ? OR nt.name = ?) AND (? = '' OR s2.zone = ?)
	          ORDER BY s2.respawntime DESC LIMIT 1`
	var respawn, variance int
	err = conn.QueryRowContext(ctx, query, gameName, "#"+gameName, zoneName, zoneName).Scan(&respawn, &variance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, ErrSpawnNotFound
		}
		return 0, 0, fmt.Errorf("error looking up spawn timing: %w", err)
	}
	minSeconds := max(respawn-variance, 0)
	maxSeconds := respawn + variance
	return minSeconds / 60, (maxSeconds + 59) / 60, nil
}

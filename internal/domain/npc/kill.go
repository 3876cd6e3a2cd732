package npc

import (
	"database/sql"
	"time"
)

// KillRecord is one confirmed kill of a definition's variant.
// Never mutated after creation. (guild_id, log_signature) is unique.
type KillRecord struct {
	ID           int64
	GuildID      int64
	DefinitionID int64
	KilledAt     time.Time
	KillerName   sql.NullString
	Notes        sql.NullString
	IsInstance   bool
	RaidID       sql.NullInt64
	LogSignature string
	CreatedAt    time.Time
}

// Pair identifies an independently tracked respawn cycle.
type Pair struct {
	DefinitionID int64
	IsInstance   bool
}

func (k *KillRecord) Pair() Pair {
	return Pair{DefinitionID: k.DefinitionID, IsInstance: k.IsInstance}
}

// VariantLabel renders the instance flag for humans.
func VariantLabel(isInstance bool) string {
	if isInstance {
		return "instance"
	}
	return "open world"
}

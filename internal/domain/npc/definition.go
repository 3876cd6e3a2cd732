// internal/domain/npc/definition.go
package npc

import (
	"database/sql"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Definition identifies a huntable NPC within a guild's tracking scope.
// Corresponds to the 'npc_definitions' table. (guild_id, normalized_name, zone_name) is unique.
type Definition struct {
	ID                 int64
	GuildID            int64
	Name               string         // Display name as entered by an admin
	NormalizedName     string         // NormalizeName(Name); used for matching
	ZoneName           sql.NullString // Same name may exist in several zones
	MinRespawnMinutes  sql.NullInt32
	MaxRespawnMinutes  sql.NullInt32
	IsRaidTarget       bool
	HasInstanceVersion bool
	ContentFlag        sql.NullString // Optional content gate (expansion/era key)
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NormalizeName case-folds a name and collapses runs of whitespace into a single space.
// Underscores count as whitespace and a leading '#' is dropped: the game database
// stores named mobs as "#Lord_Nagafen".
func NormalizeName(name string) string {
	name = strings.ReplaceAll(strings.TrimLeft(strings.TrimSpace(name), "#"), "_", " ")
	// A Caser is stateful; build one per call.
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// NormalizedZone returns the normalized zone name, or "" when the definition is zone-less.
func (d *Definition) NormalizedZone() string {
	if !d.ZoneName.Valid {
		return ""
	}
	return NormalizeName(d.ZoneName.String)
}

// ZoneLabel is the zone name for display, or "any zone".
func (d *Definition) ZoneLabel() string {
	if !d.ZoneName.Valid || strings.TrimSpace(d.ZoneName.String) == "" {
		return "any zone"
	}
	return d.ZoneName.String
}

// ValidRespawnRange reports whether the min/max bounds are coherent.
func (d *Definition) ValidRespawnRange() bool {
	if d.MinRespawnMinutes.Valid && d.MinRespawnMinutes.Int32 < 0 {
		return false
	}
	if d.MaxRespawnMinutes.Valid && d.MaxRespawnMinutes.Int32 < 0 {
		return false
	}
	if d.MinRespawnMinutes.Valid && d.MaxRespawnMinutes.Valid {
		return d.MaxRespawnMinutes.Int32 >= d.MinRespawnMinutes.Int32
	}
	return true
}

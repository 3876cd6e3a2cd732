package npc

import (
	"database/sql"
	"time"
)

// ClarificationType says why an observation could not be correlated deterministically.
type ClarificationType string

const (
	ClarificationZoneAmbiguous    ClarificationType = "ZONE_AMBIGUOUS"
	ClarificationVariantAmbiguous ClarificationType = "VARIANT_AMBIGUOUS"
	ClarificationUnknownNPC       ClarificationType = "UNKNOWN_NPC"
)

// ResolutionOutcome records how a clarification left the live queue.
type ResolutionOutcome string

const (
	OutcomeAccepted     ResolutionOutcome = "ACCEPTED"      // Admin accepted it as a kill
	OutcomeDismissed    ResolutionOutcome = "DISMISSED"     // Admin discarded the observation
	OutcomeAutoResolved ResolutionOutcome = "AUTO_RESOLVED" // A definition edit removed the ambiguity
)

// Resolution is the terminal state of a clarification.
type Resolution struct {
	ByID         int64
	At           time.Time
	Outcome      ResolutionOutcome
	KillRecordID sql.NullInt64 // Set when the outcome produced a kill
}

// ClarificationState is the two-state view of a clarification: live or resolved.
type ClarificationState string

const (
	StateLive     ClarificationState = "LIVE"
	StateResolved ClarificationState = "RESOLVED"
)

// PendingClarification is an observation awaiting human resolution.
// Corresponds to the 'npc_kill_clarifications' table; (guild_id, log_signature) is
// unique whether or not the row is resolved, so a resolved observation is never queued again.
type PendingClarification struct {
	ID                    int64
	GuildID               int64
	RaidID                sql.NullInt64
	Type                  ClarificationType
	RawName               string
	NormalizedName        string
	KilledAt              time.Time
	KillerName            sql.NullString
	ZoneHint              sql.NullString
	InstanceHint          sql.NullBool
	CandidateDefinitionID sql.NullInt64
	ZoneOptions           []string
	LogSignature          string
	Resolution            *Resolution // nil while live
	CreatedAt             time.Time
}

func (c *PendingClarification) State() ClarificationState {
	if c.Resolution == nil {
		return StateLive
	}
	return StateResolved
}

func (c *PendingClarification) IsLive() bool {
	return c.State() == StateLive
}

// Observation rebuilds the kill observation the clarification was created from.
func (c *PendingClarification) Observation() Observation {
	obs := Observation{
		GuildID:  c.GuildID,
		RawName:  c.RawName,
		KilledAt: c.KilledAt,
	}
	if c.KillerName.Valid {
		obs.Killer = c.KillerName.String
	}
	if c.ZoneHint.Valid {
		obs.ZoneHint = c.ZoneHint.String
	}
	if c.InstanceHint.Valid {
		v := c.InstanceHint.Bool
		obs.IsInstance = &v
	}
	if c.RaidID.Valid {
		v := c.RaidID.Int64
		obs.RaidID = &v
	}
	return obs
}

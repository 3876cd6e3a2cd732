package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
	idb "npc_respawn_tracker/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// CorrelationOutcome is what Correlate did with an observation.
type CorrelationOutcome string

const (
	OutcomeRecorded             CorrelationOutcome = "RECORDED"
	OutcomeDuplicate            CorrelationOutcome = "DUPLICATE"      // Signature already recorded as a kill
	OutcomeClarificationCreated CorrelationOutcome = "CLARIFICATION"  // New live clarification queued
	OutcomeAlreadyQueued        CorrelationOutcome = "ALREADY_QUEUED" // Clarification exists, live or resolved
)

// CorrelationResult describes the outcome of one observation.
type CorrelationResult struct {
	Outcome       CorrelationOutcome
	Signature     string
	Kill          *npc.KillRecord
	Clarification *npc.PendingClarification
}

// Match is the pure correlation of an observation against the guild's definitions.
// Exactly one of Definition (unambiguous) or Ambiguity is set.
type Match struct {
	Definition  *npc.Definition
	IsInstance  bool
	Ambiguity   npc.ClarificationType
	Candidate   *npc.Definition // Set for variant ambiguity
	ZoneOptions []string        // Set for zone ambiguity
}

// KillCorrelator maps candidate kill observations onto NPC definitions.
// Concurrent callers are safe without an in-process lock: the kill signature and the
// clarification natural key are unique in storage, so the first writer wins.
type KillCorrelator struct {
	defs           npc.DefinitionRepository
	kills          npc.KillRepository
	clarifications npc.ClarificationRepository
	notifications  npc.NotificationStateRepository
	logger         *logrus.Entry
}

func NewKillCorrelator(
	defs npc.DefinitionRepository,
	kills npc.KillRepository,
	clarifications npc.ClarificationRepository,
	notifications npc.NotificationStateRepository,
	logger *logrus.Entry,
) *KillCorrelator {
	return &KillCorrelator{
		defs:           defs,
		kills:          kills,
		clarifications: clarifications,
		notifications:  notifications,
		logger:         logger,
	}
}

// Correlate resolves an observation to a recorded kill, a clarification, or an
// idempotent no-op when the same observation was seen before.
func (c *KillCorrelator) Correlate(ctx context.Context, obs npc.Observation) (*CorrelationResult, error) {
	if strings.TrimSpace(obs.RawName) == "" {
		return nil, ErrEmptyNPCName
	}
	sig := obs.Signature()
	log := c.logger.WithFields(logrus.Fields{
		"guild_id":  obs.GuildID,
		"npc":       obs.RawName,
		"signature": sig,
	})

	seen, err := c.kills.ExistsBySignature(ctx, obs.GuildID, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to check kill signature: %w", err)
	}
	if seen {
		log.Debug("Observation already recorded as a kill")
		return &CorrelationResult{Outcome: OutcomeDuplicate, Signature: sig}, nil
	}

	existing, err := c.clarifications.GetBySignature(ctx, obs.GuildID, sig)
	switch {
	case err == nil:
		// Resolution is terminal: a resolved clarification is never queued again.
		log.WithField("clarification_state", existing.State()).Debug("Observation already has a clarification")
		return &CorrelationResult{Outcome: OutcomeAlreadyQueued, Signature: sig, Clarification: existing}, nil
	case !errors.Is(err, idb.ErrClarificationNotFound):
		return nil, fmt.Errorf("failed to check clarification signature: %w", err)
	}

	m, err := c.Match(ctx, obs)
	if err != nil {
		return nil, err
	}

	if m.Ambiguity != "" {
		return c.queueClarification(ctx, obs, sig, m, log)
	}

	kill, created, err := c.RecordKill(ctx, m.Definition, obs, m.IsInstance, sig)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Debug("Concurrent writer recorded this kill first")
		return &CorrelationResult{Outcome: OutcomeDuplicate, Signature: sig}, nil
	}
	return &CorrelationResult{Outcome: OutcomeRecorded, Signature: sig, Kill: kill}, nil
}

// Match correlates without touching storage beyond reading definitions.
func (c *KillCorrelator) Match(ctx context.Context, obs npc.Observation) (*Match, error) {
	normalized := npc.NormalizeName(obs.RawName)
	defs, err := c.defs.ListByNormalizedName(ctx, obs.GuildID, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions for %q: %w", normalized, err)
	}
	if len(defs) == 0 {
		return &Match{Ambiguity: npc.ClarificationUnknownNPC}, nil
	}

	candidates := defs
	if len(defs) > 1 {
		if hint := npc.NormalizeName(obs.ZoneHint); hint != "" {
			var narrowed []*npc.Definition
			for _, d := range defs {
				if d.NormalizedZone() == hint {
					narrowed = append(narrowed, d)
				}
			}
			if len(narrowed) == 1 {
				candidates = narrowed
			}
		}
	}
	if len(candidates) > 1 {
		return &Match{Ambiguity: npc.ClarificationZoneAmbiguous, ZoneOptions: zoneOptions(candidates)}, nil
	}

	def := candidates[0]
	if !def.HasInstanceVersion {
		return &Match{Definition: def}, nil
	}
	if obs.IsInstance == nil {
		return &Match{Ambiguity: npc.ClarificationVariantAmbiguous, Candidate: def}, nil
	}
	return &Match{Definition: def, IsInstance: *obs.IsInstance}, nil
}

// RecordKill persists a kill for a chosen definition and variant and re-anchors the
// pair's notification cycle. Every kill, whatever its origin, goes through here.
// created is false when the signature already exists.
func (c *KillCorrelator) RecordKill(ctx context.Context, def *npc.Definition, obs npc.Observation, isInstance bool, signature string) (*npc.KillRecord, bool, error) {
	if !def.HasInstanceVersion {
		isInstance = false
	}
	kill := &npc.KillRecord{
		GuildID:      def.GuildID,
		DefinitionID: def.ID,
		KilledAt:     obs.KilledAt.UTC(),
		KillerName:   nullString(obs.Killer),
		Notes:        nullString(obs.Notes),
		IsInstance:   isInstance,
		LogSignature: signature,
	}
	if obs.RaidID != nil {
		kill.RaidID = sql.NullInt64{Int64: *obs.RaidID, Valid: true}
	}

	created, err := c.kills.Create(ctx, kill)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create kill record: %w", err)
	}
	if !created {
		return nil, false, nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"guild_id":      def.GuildID,
		"definition_id": def.ID,
		"kill_id":       kill.ID,
		"is_instance":   isInstance,
	})
	log.Info("NPC kill recorded")

	// A new kill starts a new cycle only if it is now the latest one for the pair.
	// Failures here are healed by the next notification tick, which re-anchors too.
	anchor, err := c.kills.LatestForPair(ctx, kill.Pair())
	if err != nil {
		log.WithError(err).Warn("Could not load anchor kill after recording")
		return kill, true, nil
	}
	if _, err := c.notifications.Reanchor(ctx, kill.Pair(), anchor.ID); err != nil {
		log.WithError(err).Warn("Could not re-anchor notification state")
	}
	return kill, true, nil
}

func (c *KillCorrelator) queueClarification(ctx context.Context, obs npc.Observation, sig string, m *Match, log *logrus.Entry) (*CorrelationResult, error) {
	clar := &npc.PendingClarification{
		GuildID:        obs.GuildID,
		Type:           m.Ambiguity,
		RawName:        strings.TrimSpace(obs.RawName),
		NormalizedName: npc.NormalizeName(obs.RawName),
		KilledAt:       obs.KilledAt.UTC(),
		KillerName:     nullString(obs.Killer),
		ZoneHint:       nullString(obs.ZoneHint),
		ZoneOptions:    m.ZoneOptions,
		LogSignature:   sig,
	}
	if obs.RaidID != nil {
		clar.RaidID = sql.NullInt64{Int64: *obs.RaidID, Valid: true}
	}
	if obs.IsInstance != nil {
		clar.InstanceHint = sql.NullBool{Bool: *obs.IsInstance, Valid: true}
	}
	if m.Candidate != nil {
		clar.CandidateDefinitionID = sql.NullInt64{Int64: m.Candidate.ID, Valid: true}
	}

	created, err := c.clarifications.Create(ctx, clar)
	if err != nil {
		return nil, fmt.Errorf("failed to create clarification: %w", err)
	}
	if !created {
		log.Debug("Concurrent writer queued this clarification first")
		return &CorrelationResult{Outcome: OutcomeAlreadyQueued, Signature: sig}, nil
	}
	log.WithFields(logrus.Fields{
		"clarification_id":   clar.ID,
		"clarification_type": clar.Type,
	}).Info("Kill needs clarification")
	return &CorrelationResult{Outcome: OutcomeClarificationCreated, Signature: sig, Clarification: clar}, nil
}

func zoneOptions(defs []*npc.Definition) []string {
	seen := make(map[string]bool, len(defs))
	opts := make([]string, 0, len(defs))
	for _, d := range defs {
		label := d.ZoneLabel()
		if seen[label] {
			continue
		}
		seen[label] = true
		opts = append(opts, label)
	}
	return opts
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// utcNow is the default clock of the services.
func utcNow() time.Time { return time.Now().UTC() }

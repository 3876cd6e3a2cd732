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

// RespawnLookup suggests respawn bounds for an NPC from the live game database.
type RespawnLookup interface {
	RespawnMinutes(ctx context.Context, npcName, zoneName string) (minMinutes, maxMinutes int, err error)
}

// DefinitionService handles administration of NPC definitions.
type DefinitionService struct {
	defs            npc.DefinitionRepository
	kills           npc.KillRepository
	clarifications  *ClarificationService
	correlator      *KillCorrelator
	lookup          RespawnLookup
	adminTelegramID int64
	logger          *logrus.Entry
}

func NewDefinitionService(
	dr npc.DefinitionRepository,
	kr npc.KillRepository,
	cs *ClarificationService,
	correlator *KillCorrelator,
	lookup RespawnLookup,
	adminID int64,
	logger *logrus.Entry,
) *DefinitionService {
	return &DefinitionService{
		defs:            dr,
		kills:           kr,
		clarifications:  cs,
		correlator:      correlator,
		lookup:          lookup,
		adminTelegramID: adminID,
		logger:          logger,
	}
}

// Create adds a definition and settles any live clarifications it disambiguates.
func (s *DefinitionService) Create(ctx context.Context, performingAdminID int64, def *npc.Definition) (*npc.Definition, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	if strings.TrimSpace(def.Name) == "" {
		return nil, ErrEmptyNPCName
	}
	if !def.ValidRespawnRange() {
		return nil, ErrInvalidRespawnRange
	}
	if err := s.defs.Create(ctx, def); err != nil {
		if errors.Is(err, idb.ErrDuplicateDefinition) {
			return nil, idb.ErrDuplicateDefinition
		}
		return nil, fmt.Errorf("failed to create definition: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"definition_id": def.ID,
		"guild_id":      def.GuildID,
		"name":          def.Name,
	}).Info("NPC definition created")

	if _, err := s.clarifications.AutoResolve(ctx, performingAdminID, def); err != nil {
		s.logger.WithError(err).WithField("definition_id", def.ID).Warn("Auto-resolve after create failed")
	}
	return def, nil
}

// Update saves an edited definition. Changing the name, zone or instance
// configuration re-runs auto-resolve for the affected clarifications.
func (s *DefinitionService) Update(ctx context.Context, performingAdminID int64, def *npc.Definition) (*npc.Definition, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	existing, err := s.defs.GetByID(ctx, def.ID)
	if err != nil {
		if errors.Is(err, idb.ErrDefinitionNotFound) {
			return nil, idb.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get definition %d: %w", def.ID, err)
	}
	if existing.GuildID != def.GuildID {
		return nil, ErrDefinitionGuildMismatch
	}
	if strings.TrimSpace(def.Name) == "" {
		return nil, ErrEmptyNPCName
	}
	if !def.ValidRespawnRange() {
		return nil, ErrInvalidRespawnRange
	}
	if err := s.defs.Update(ctx, def); err != nil {
		if errors.Is(err, idb.ErrDuplicateDefinition) {
			return nil, idb.ErrDuplicateDefinition
		}
		return nil, fmt.Errorf("failed to update definition %d: %w", def.ID, err)
	}

	matchingChanged := existing.NormalizedName != def.NormalizedName ||
		existing.NormalizedZone() != def.NormalizedZone() ||
		existing.HasInstanceVersion != def.HasInstanceVersion
	if matchingChanged {
		affected := []*npc.Definition{def}
		if existing.NormalizedName != def.NormalizedName {
			// Sightings queued under the old name may no longer be ambiguous either.
			affected = append(affected, existing)
		}
		for _, d := range affected {
			if _, err := s.clarifications.AutoResolve(ctx, performingAdminID, d); err != nil {
				s.logger.WithError(err).WithField("definition_id", def.ID).Warn("Auto-resolve after update failed")
			}
		}
	}
	return def, nil
}

// Delete removes a definition; kills, subscriptions and notification state cascade.
func (s *DefinitionService) Delete(ctx context.Context, performingAdminID, id int64) error {
	if performingAdminID != s.adminTelegramID {
		return ErrAdminNotAuthorized
	}
	if err := s.defs.Delete(ctx, id); err != nil {
		if errors.Is(err, idb.ErrDefinitionNotFound) {
			return idb.ErrDefinitionNotFound
		}
		return fmt.Errorf("failed to delete definition %d: %w", id, err)
	}
	s.logger.WithField("definition_id", id).Info("NPC definition deleted")
	return nil
}

func (s *DefinitionService) List(ctx context.Context, guildID int64) ([]*npc.Definition, error) {
	defs, err := s.defs.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	return defs, nil
}

// SuggestRespawn reads the game's spawn timing for the definition and stores it
// when the definition has no bounds yet. The suggestion is returned either way.
func (s *DefinitionService) SuggestRespawn(ctx context.Context, performingAdminID, id int64) (*npc.Definition, int, int, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, 0, 0, ErrAdminNotAuthorized
	}
	def, err := s.defs.GetByID(ctx, id)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to get definition %d: %w", id, err)
	}
	zone := ""
	if def.ZoneName.Valid {
		zone = def.ZoneName.String
	}
	minM, maxM, err := s.lookup.RespawnMinutes(ctx, def.Name, zone)
	if err != nil {
		return def, 0, 0, err
	}
	if !def.MinRespawnMinutes.Valid && !def.MaxRespawnMinutes.Valid {
		def.MinRespawnMinutes = sql.NullInt32{Int32: int32(minM), Valid: true}
		def.MaxRespawnMinutes = sql.NullInt32{Int32: int32(maxM), Valid: true}
		if err := s.defs.Update(ctx, def); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to store suggested respawn: %w", err)
		}
	}
	return def, minM, maxM, nil
}

// ManualKill is an administrator-entered kill.
type ManualKill struct {
	DefinitionID int64
	KilledAt     time.Time
	IsInstance   *bool
	Killer       string
	Notes        string
}

// RecordManualKill records a kill through the same path as correlated observations.
// Re-submitting the same kill is a no-op and returns created == false.
func (s *DefinitionService) RecordManualKill(ctx context.Context, performingAdminID int64, mk ManualKill) (*npc.KillRecord, bool, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, false, ErrAdminNotAuthorized
	}
	def, err := s.defs.GetByID(ctx, mk.DefinitionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get definition %d: %w", mk.DefinitionID, err)
	}
	isInstance := false
	if def.HasInstanceVersion {
		if mk.IsInstance == nil {
			return nil, false, ErrVariantRequired
		}
		isInstance = *mk.IsInstance
	}
	obs := npc.Observation{
		GuildID:    def.GuildID,
		RawName:    def.Name,
		KilledAt:   mk.KilledAt,
		Killer:     mk.Killer,
		IsInstance: mk.IsInstance,
		Notes:      mk.Notes,
	}
	return s.correlator.RecordKill(ctx, def, obs, isInstance, obs.Signature())
}

// RecentKills lists a definition's kill history, newest first.
func (s *DefinitionService) RecentKills(ctx context.Context, definitionID int64, limit int) ([]*npc.KillRecord, error) {
	kills, err := s.kills.ListByDefinition(ctx, definitionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list kills: %w", err)
	}
	return kills, nil
}

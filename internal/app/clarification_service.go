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

// ResolveAction is the administrator's decision on a clarification.
type ResolveAction string

const (
	ActionAccept  ResolveAction = "accept"
	ActionDismiss ResolveAction = "dismiss"
)

// ResolveRequest describes one administrator resolution.
// For ActionAccept the definition is chosen in order: DefinitionID, NewDefinition,
// then the clarification's candidate.
type ResolveRequest struct {
	ClarificationID int64
	Action          ResolveAction
	DefinitionID    int64
	NewDefinition   *npc.Definition
	IsInstance      *bool
}

// ResolveResult is returned for every resolution, including repeated ones.
type ResolveResult struct {
	Clarification   *npc.PendingClarification
	Definition      *npc.Definition
	Kill            *npc.KillRecord
	AlreadyResolved bool
}

// ClarificationService owns the ambiguous-match workflow.
type ClarificationService struct {
	clarifications  npc.ClarificationRepository
	defs            npc.DefinitionRepository
	correlator      *KillCorrelator
	adminTelegramID int64
	logger          *logrus.Entry
	now             func() time.Time
}

func NewClarificationService(
	cr npc.ClarificationRepository,
	dr npc.DefinitionRepository,
	correlator *KillCorrelator,
	adminID int64,
	logger *logrus.Entry,
) *ClarificationService {
	return &ClarificationService{
		clarifications:  cr,
		defs:            dr,
		correlator:      correlator,
		adminTelegramID: adminID,
		logger:          logger,
		now:             utcNow,
	}
}

// ListLive returns the guild's actionable queue, oldest kill first.
func (s *ClarificationService) ListLive(ctx context.Context, performingAdminID, guildID int64) ([]*npc.PendingClarification, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	live, err := s.clarifications.ListLive(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list live clarifications: %w", err)
	}
	return live, nil
}

// Resolve applies an administrator decision. Resolving an already resolved
// clarification is a no-op reported through AlreadyResolved.
func (s *ClarificationService) Resolve(ctx context.Context, performingAdminID int64, req ResolveRequest) (*ResolveResult, error) {
	if performingAdminID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	clar, err := s.clarifications.GetByID(ctx, req.ClarificationID)
	if err != nil {
		if errors.Is(err, idb.ErrClarificationNotFound) {
			return nil, idb.ErrClarificationNotFound
		}
		return nil, fmt.Errorf("failed to get clarification %d: %w", req.ClarificationID, err)
	}
	if !clar.IsLive() {
		return &ResolveResult{Clarification: clar, AlreadyResolved: true}, nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"clarification_id": clar.ID,
		"guild_id":         clar.GuildID,
		"action":           req.Action,
	})

	switch req.Action {
	case ActionDismiss:
		res := npc.Resolution{ByID: performingAdminID, At: s.now(), Outcome: npc.OutcomeDismissed}
		return s.stamp(ctx, clar, res, &ResolveResult{Clarification: clar}, log)
	case ActionAccept:
	default:
		return nil, ErrInvalidResolution
	}

	def, createdDef, err := s.chooseDefinition(ctx, clar, req)
	if err != nil {
		return nil, err
	}
	isInstance, err := chooseVariant(def, clar, req.IsInstance)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{Clarification: clar, Definition: def}
	kill, created, err := s.correlator.RecordKill(ctx, def, clar.Observation(), isInstance, clar.LogSignature)
	if err != nil {
		return nil, err
	}
	res := npc.Resolution{ByID: performingAdminID, At: s.now(), Outcome: npc.OutcomeAccepted}
	if created {
		result.Kill = kill
		res.KillRecordID = sql.NullInt64{Int64: kill.ID, Valid: true}
	}
	result, err = s.stamp(ctx, clar, res, result, log)
	if err != nil {
		return nil, err
	}
	if createdDef {
		// The new definition may settle other queued sightings of the same name.
		if _, err := s.AutoResolve(ctx, performingAdminID, def); err != nil {
			log.WithError(err).Warn("Auto-resolve after accepting a new definition failed")
		}
	}
	return result, nil
}

func (s *ClarificationService) stamp(ctx context.Context, clar *npc.PendingClarification, res npc.Resolution, result *ResolveResult, log *logrus.Entry) (*ResolveResult, error) {
	resolved, err := s.clarifications.Resolve(ctx, clar.ID, res)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve clarification %d: %w", clar.ID, err)
	}
	if !resolved {
		log.Info("Clarification was resolved concurrently")
		result.AlreadyResolved = true
		return result, nil
	}
	clar.Resolution = &res
	log.WithField("outcome", res.Outcome).Info("Clarification resolved")
	return result, nil
}

func (s *ClarificationService) chooseDefinition(ctx context.Context, clar *npc.PendingClarification, req ResolveRequest) (*npc.Definition, bool, error) {
	switch {
	case req.DefinitionID > 0:
		def, err := s.defs.GetByID(ctx, req.DefinitionID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get definition %d: %w", req.DefinitionID, err)
		}
		if def.GuildID != clar.GuildID {
			return nil, false, ErrDefinitionGuildMismatch
		}
		return def, false, nil
	case req.NewDefinition != nil:
		def := *req.NewDefinition
		def.GuildID = clar.GuildID
		if strings.TrimSpace(def.Name) == "" {
			def.Name = clar.RawName
		}
		if !def.ValidRespawnRange() {
			return nil, false, ErrInvalidRespawnRange
		}
		if err := s.defs.Create(ctx, &def); err != nil {
			return nil, false, fmt.Errorf("failed to create definition: %w", err)
		}
		return &def, true, nil
	case clar.CandidateDefinitionID.Valid:
		def, err := s.defs.GetByID(ctx, clar.CandidateDefinitionID.Int64)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get candidate definition: %w", err)
		}
		return def, false, nil
	}
	return nil, false, ErrInvalidResolution
}

func chooseVariant(def *npc.Definition, clar *npc.PendingClarification, requested *bool) (bool, error) {
	if !def.HasInstanceVersion {
		return false, nil
	}
	if requested != nil {
		return *requested, nil
	}
	if clar.InstanceHint.Valid {
		return clar.InstanceHint.Bool, nil
	}
	return false, ErrVariantRequired
}

// AutoResolve re-runs correlation for live clarifications sharing def's name and
// resolves those that are no longer ambiguous. It returns how many were resolved.
func (s *ClarificationService) AutoResolve(ctx context.Context, performingAdminID int64, def *npc.Definition) (int, error) {
	live, err := s.clarifications.ListLiveByName(ctx, def.GuildID, def.NormalizedName)
	if err != nil {
		return 0, fmt.Errorf("failed to list live clarifications for %q: %w", def.NormalizedName, err)
	}
	resolvedCount := 0
	for _, clar := range live {
		obs := clar.Observation()
		m, err := s.correlator.Match(ctx, obs)
		if err != nil {
			return resolvedCount, err
		}
		if m.Ambiguity != "" {
			continue
		}
		kill, created, err := s.correlator.RecordKill(ctx, m.Definition, obs, m.IsInstance, clar.LogSignature)
		if err != nil {
			return resolvedCount, err
		}
		res := npc.Resolution{ByID: performingAdminID, At: s.now(), Outcome: npc.OutcomeAutoResolved}
		if created {
			res.KillRecordID = sql.NullInt64{Int64: kill.ID, Valid: true}
		}
		ok, err := s.clarifications.Resolve(ctx, clar.ID, res)
		if err != nil {
			return resolvedCount, fmt.Errorf("failed to auto-resolve clarification %d: %w", clar.ID, err)
		}
		if ok {
			resolvedCount++
		}
	}
	if resolvedCount > 0 {
		s.logger.WithFields(logrus.Fields{
			"definition_id": def.ID,
			"resolved":      resolvedCount,
		}).Info("Clarifications auto-resolved after definition change")
	}
	return resolvedCount, nil
}

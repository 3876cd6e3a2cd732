// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
	idb "npc_respawn_tracker/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// maxReevaluations bounds how often a tick re-reads a pair whose anchor moved under it.
const maxReevaluations = 2

// NotificationService evaluates every tracked (definition, variant) pair against
// the current time and delivers the per-cycle notifications that are due.
type NotificationService struct {
	defs          npc.DefinitionRepository
	kills         npc.KillRepository
	subs          npc.SubscriptionRepository
	notifications npc.NotificationStateRepository
	notifier      npc.Notifier
	logger        *logrus.Entry
	now           func() time.Time
}

func NewNotificationService(
	defs npc.DefinitionRepository,
	kills npc.KillRepository,
	subs npc.SubscriptionRepository,
	notifications npc.NotificationStateRepository,
	notifier npc.Notifier,
	logger *logrus.Entry,
) *NotificationService {
	return &NotificationService{
		defs:          defs,
		kills:         kills,
		subs:          subs,
		notifications: notifications,
		notifier:      notifier,
		logger:        logger,
		now:           utcNow,
	}
}

// TickReport summarises one scheduler tick.
type TickReport struct {
	Pairs  int
	Window int // Window-approaching notifications delivered and marked
	Up     int // Now-up notifications delivered and marked
	Failed int // Pairs whose evaluation or delivery failed; retried next tick
}

// Tick runs one evaluation pass. A failing pair never stops the pass; flags are
// persisted so repeated ticks within a cycle deliver each kind at most once.
func (s *NotificationService) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	anchors, err := s.kills.ListAnchors(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list anchor kills: %w", err)
	}
	now := s.now()
	defs := make(map[int64]*npc.Definition)

	for _, anchor := range anchors {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Pairs++
		def, err := s.definition(ctx, defs, anchor.DefinitionID)
		if err != nil {
			report.Failed++
			s.logger.WithError(err).WithField("definition_id", anchor.DefinitionID).Error("Failed to load definition for anchor kill")
			continue
		}
		kind, err := s.evaluatePair(ctx, def, anchor, now)
		if err != nil {
			report.Failed++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"definition_id": def.ID,
				"is_instance":   anchor.IsInstance,
			}).Error("Failed to evaluate respawn notifications")
			continue
		}
		switch kind {
		case npc.KindWindowApproaching:
			report.Window++
		case npc.KindNowUp:
			report.Up++
		}
	}
	if report.Window+report.Up > 0 || report.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"pairs":  report.Pairs,
			"window": report.Window,
			"up":     report.Up,
			"failed": report.Failed,
		}).Info("Notification tick finished")
	}
	return report, nil
}

func (s *NotificationService) definition(ctx context.Context, cache map[int64]*npc.Definition, id int64) (*npc.Definition, error) {
	if def, ok := cache[id]; ok {
		return def, nil
	}
	def, err := s.defs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = def
	return def, nil
}

// evaluatePair returns the kind delivered for the pair, or "" when nothing was due.
func (s *NotificationService) evaluatePair(ctx context.Context, def *npc.Definition, anchor *npc.KillRecord, now time.Time) (npc.NotificationKind, error) {
	pair := anchor.Pair()
	log := s.logger.WithFields(logrus.Fields{
		"definition_id": def.ID,
		"is_instance":   pair.IsInstance,
	})

	for attempt := 0; attempt < maxReevaluations; attempt++ {
		window := npc.ComputeWindow(def, anchor.KilledAt)
		phase := window.PhaseAt(now)
		if phase == npc.PhaseClosed {
			return "", nil
		}

		state, err := s.notifications.Reanchor(ctx, pair, anchor.ID)
		if err != nil {
			return "", fmt.Errorf("failed to anchor notification state: %w", err)
		}
		// The anchor list is read once per tick; a kill recorded since then already owns the row.
		if !state.AnchoredTo(anchor.ID) {
			log.WithField("stale_kill_id", anchor.ID).Info("Newer kill already anchors the pair; re-evaluating")
			if anchor, err = s.kills.LatestForPair(ctx, pair); err != nil {
				return "", fmt.Errorf("failed to reload anchor kill: %w", err)
			}
			continue
		}

		var kind npc.NotificationKind
		switch phase {
		case npc.PhasePendingWindow:
			if state.WindowNotifiedAt.Valid {
				return "", nil
			}
			kind = npc.KindWindowApproaching
		case npc.PhaseOpen:
			if state.UpNotifiedAt.Valid {
				return "", nil
			}
			kind = npc.KindNowUp
		}

		subs, err := s.subs.ListEnabledByPair(ctx, pair)
		if err != nil {
			return "", fmt.Errorf("failed to list subscriptions: %w", err)
		}
		if len(subs) == 0 {
			return "", nil
		}
		n := buildNotification(kind, def, anchor, window, subs)
		if kind == npc.KindWindowApproaching && now.Before(window.OpensAt.Add(-time.Duration(n.LeadMinutes)*time.Minute)) {
			return "", nil
		}

		// Flags were read above; if a new kill moved the anchor since, start over from it.
		current, err := s.notifications.Get(ctx, pair)
		if err != nil && !errors.Is(err, idb.ErrNotificationStateNotFound) {
			return "", fmt.Errorf("failed to re-read notification state: %w", err)
		}
		if !current.AnchoredTo(anchor.ID) {
			log.WithField("stale_kill_id", anchor.ID).Info("Anchor changed during evaluation; re-evaluating")
			anchor, err = s.kills.LatestForPair(ctx, pair)
			if err != nil {
				return "", fmt.Errorf("failed to reload anchor kill: %w", err)
			}
			continue
		}

		if err := s.notifier.Deliver(ctx, n); err != nil {
			return "", fmt.Errorf("failed to deliver %s notification: %w", kind, err)
		}

		var marked bool
		if kind == npc.KindWindowApproaching {
			marked, err = s.notifications.MarkWindowNotified(ctx, pair, anchor.ID, now)
		} else {
			marked, err = s.notifications.MarkUpNotified(ctx, pair, anchor.ID, now)
		}
		if err != nil {
			return "", fmt.Errorf("failed to mark %s notification sent: %w", kind, err)
		}
		if !marked {
			log.WithField("kind", kind).Warn("Notification delivered but flag was already set or anchor moved")
		}
		log.WithFields(logrus.Fields{
			"kind":       kind,
			"kill_id":    anchor.ID,
			"recipients": len(n.Recipients),
		}).Info("Respawn notification sent")
		return kind, nil
	}
	return "", fmt.Errorf("anchor kept changing for definition %d", def.ID)
}

func buildNotification(kind npc.NotificationKind, def *npc.Definition, anchor *npc.KillRecord, window npc.Window, subs []*npc.Subscription) npc.Notification {
	n := npc.Notification{
		Kind:         kind,
		GuildID:      def.GuildID,
		DefinitionID: def.ID,
		NPCName:      def.Name,
		ZoneName:     def.ZoneLabel(),
		IsInstance:   anchor.IsInstance,
		KillRecordID: anchor.ID,
		KilledAt:     anchor.KilledAt,
		Window:       window,
		Recipients:   make([]int64, 0, len(subs)),
	}
	for _, sub := range subs {
		n.Recipients = append(n.Recipients, sub.UserID)
		if sub.NotifyMinutes > n.LeadMinutes {
			n.LeadMinutes = sub.NotifyMinutes
		}
	}
	return n
}

// TimerView is the current respawn cycle of one pair.
type TimerView struct {
	Definition *npc.Definition
	IsInstance bool
	LastKill   *npc.KillRecord
	Window     npc.Window
	Phase      npc.Phase
}

// ListTimers derives the current window of every pair in the guild that has a kill.
func (s *NotificationService) ListTimers(ctx context.Context, guildID int64) ([]TimerView, error) {
	anchors, err := s.kills.ListAnchorsByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list anchor kills: %w", err)
	}
	now := s.now()
	defs := make(map[int64]*npc.Definition)
	views := make([]TimerView, 0, len(anchors))
	for _, anchor := range anchors {
		def, err := s.definition(ctx, defs, anchor.DefinitionID)
		if err != nil {
			if errors.Is(err, idb.ErrDefinitionNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to load definition %d: %w", anchor.DefinitionID, err)
		}
		w := npc.ComputeWindow(def, anchor.KilledAt)
		views = append(views, TimerView{
			Definition: def,
			IsInstance: anchor.IsInstance,
			LastKill:   anchor,
			Window:     w,
			Phase:      w.PhaseAt(now),
		})
	}
	return views, nil
}

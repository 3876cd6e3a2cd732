package app

import (
	"context"
	"errors"
	"fmt"

	"npc_respawn_tracker/internal/domain/npc"
	idb "npc_respawn_tracker/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// SubscriptionService manages users' respawn subscriptions.
type SubscriptionService struct {
	subs   npc.SubscriptionRepository
	defs   npc.DefinitionRepository
	logger *logrus.Entry
}

func NewSubscriptionService(sr npc.SubscriptionRepository, dr npc.DefinitionRepository, logger *logrus.Entry) *SubscriptionService {
	return &SubscriptionService{subs: sr, defs: dr, logger: logger}
}

// Subscribe enables notifications for one variant, creating or updating the subscription.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, definitionID int64, isInstance bool, notifyMinutes int) (*npc.Subscription, error) {
	if notifyMinutes < 0 {
		return nil, ErrInvalidLeadTime
	}
	def, err := s.defs.GetByID(ctx, definitionID)
	if err != nil {
		if errors.Is(err, idb.ErrDefinitionNotFound) {
			return nil, idb.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get definition %d: %w", definitionID, err)
	}
	if isInstance && !def.HasInstanceVersion {
		return nil, ErrNoInstanceVersion
	}
	sub := &npc.Subscription{
		DefinitionID:  def.ID,
		UserID:        userID,
		IsInstance:    isInstance,
		NotifyMinutes: notifyMinutes,
		Enabled:       true,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"definition_id": def.ID,
		"is_instance":   isInstance,
	}).Info("Respawn subscription saved")
	return sub, nil
}

// Unsubscribe disables a subscription; it is kept so the lead time survives re-subscribing.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, definitionID int64, isInstance bool) error {
	sub, err := s.subs.Get(ctx, definitionID, userID, isInstance)
	if err != nil {
		if errors.Is(err, idb.ErrSubscriptionNotFound) {
			return idb.ErrSubscriptionNotFound
		}
		return fmt.Errorf("failed to get subscription: %w", err)
	}
	if !sub.Enabled {
		return nil
	}
	if err := s.subs.SetEnabled(ctx, sub.ID, false); err != nil {
		return fmt.Errorf("failed to disable subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionService) ListForUser(ctx context.Context, userID int64) ([]*npc.Subscription, error) {
	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

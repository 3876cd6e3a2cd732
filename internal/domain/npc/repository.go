package npc

import (
	"context"
	"time"
)

// DefinitionRepository persists NPC definitions.
type DefinitionRepository interface {
	Create(ctx context.Context, def *Definition) error
	GetByID(ctx context.Context, id int64) (*Definition, error)
	ListByNormalizedName(ctx context.Context, guildID int64, normalizedName string) ([]*Definition, error)
	ListByGuild(ctx context.Context, guildID int64) ([]*Definition, error)
	Update(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id int64) error // Cascades to kills, clarification candidates, subscriptions, notification state
}

// KillRepository persists confirmed kills.
type KillRepository interface {
	// Create inserts the record unless its (guild, signature) already exists.
	// created is false on a signature collision; that is not an error.
	Create(ctx context.Context, kill *KillRecord) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*KillRecord, error)
	ExistsBySignature(ctx context.Context, guildID int64, signature string) (bool, error)
	// LatestForPair returns the anchor kill of a pair (latest killed_at, ties by id).
	LatestForPair(ctx context.Context, pair Pair) (*KillRecord, error)
	// ListAnchors returns the anchor kill of every pair that has at least one kill.
	ListAnchors(ctx context.Context) ([]*KillRecord, error)
	ListAnchorsByGuild(ctx context.Context, guildID int64) ([]*KillRecord, error)
	ListByDefinition(ctx context.Context, definitionID int64, limit int) ([]*KillRecord, error)
}

// ClarificationRepository persists pending clarifications.
type ClarificationRepository interface {
	// Create inserts the clarification unless (guild, signature) already exists,
	// live or resolved. created is false on collision.
	Create(ctx context.Context, c *PendingClarification) (created bool, err error)
	GetByID(ctx context.Context, id int64) (*PendingClarification, error)
	GetBySignature(ctx context.Context, guildID int64, signature string) (*PendingClarification, error)
	ListLive(ctx context.Context, guildID int64) ([]*PendingClarification, error)
	ListLiveByName(ctx context.Context, guildID int64, normalizedName string) ([]*PendingClarification, error)
	// Resolve stamps the resolution only if the row is still live. resolved is
	// false when another actor got there first.
	Resolve(ctx context.Context, id int64, res Resolution) (resolved bool, err error)
}

// SubscriptionRepository persists respawn subscriptions.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, definitionID, userID int64, isInstance bool) (*Subscription, error)
	ListEnabledByPair(ctx context.Context, pair Pair) ([]*Subscription, error)
	ListByUser(ctx context.Context, userID int64) ([]*Subscription, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// NotificationStateRepository persists per-cycle notification flags.
type NotificationStateRepository interface {
	Get(ctx context.Context, pair Pair) (*NotificationState, error)
	// Reanchor points the pair's state at killID. When the anchor changes both
	// sent timestamps are cleared; re-anchoring to the same kill is a no-op.
	Reanchor(ctx context.Context, pair Pair, killID int64) (*NotificationState, error)
	// MarkWindowNotified and MarkUpNotified stamp the flag only while the state is
	// still anchored to killID and the flag is unset. marked is false otherwise.
	MarkWindowNotified(ctx context.Context, pair Pair, killID int64, at time.Time) (marked bool, err error)
	MarkUpNotified(ctx context.Context, pair Pair, killID int64, at time.Time) (marked bool, err error)
}

// Notifier delivers a notification to its subscriber. Formatting and channel
// dispatch belong to the implementation.
type Notifier interface {
	Deliver(ctx context.Context, n Notification) error
}

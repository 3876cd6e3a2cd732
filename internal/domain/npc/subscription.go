package npc

import "time"

// Subscription is a user's opt-in to respawn notifications for one definition variant.
// Unique per (definition_id, user_id, is_instance).
type Subscription struct {
	ID            int64
	DefinitionID  int64
	UserID        int64 // Telegram user ID of the subscriber
	IsInstance    bool
	NotifyMinutes int // Lead time before the window opens
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

package npc

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// NotificationState tracks what was already sent for the current cycle of a pair.
// Corresponds to 'npc_respawn_notifications'; unique per (definition_id, is_instance).
// Moving LastKillRecordID to a new kill clears both timestamps.
type NotificationState struct {
	ID               int64
	DefinitionID     int64
	IsInstance       bool
	LastKillRecordID int64
	WindowNotifiedAt sql.NullTime
	UpNotifiedAt     sql.NullTime
	UpdatedAt        time.Time
}

// AnchoredTo reports whether the state belongs to the cycle started by killID.
func (s *NotificationState) AnchoredTo(killID int64) bool {
	return s != nil && s.LastKillRecordID == killID
}

// NotificationKind distinguishes the two per-cycle notifications.
type NotificationKind string

const (
	KindWindowApproaching NotificationKind = "WINDOW_APPROACHING"
	KindNowUp             NotificationKind = "NOW_UP"
)

// Notification is a fully formed payload handed to a delivery sink.
type Notification struct {
	Kind         NotificationKind
	GuildID      int64
	DefinitionID int64
	NPCName      string
	ZoneName     string
	IsInstance   bool
	KillRecordID int64
	KilledAt     time.Time
	Window       Window
	Recipients   []int64 // Telegram user IDs of the pair's enabled subscribers
	LeadMinutes  int     // Largest lead time among Recipients
}

// Text renders a plain-text message suitable for chat delivery.
func (n Notification) Text() string {
	var b strings.Builder
	switch n.Kind {
	case KindWindowApproaching:
		fmt.Fprintf(&b, "%s (%s, %s) respawn window opens %s", n.NPCName, n.ZoneName, VariantLabel(n.IsInstance), n.Window.OpensAt.UTC().Format("Jan 02 15:04 MST"))
	case KindNowUp:
		fmt.Fprintf(&b, "%s (%s, %s) may be up now", n.NPCName, n.ZoneName, VariantLabel(n.IsInstance))
	default:
		fmt.Fprintf(&b, "%s (%s, %s)", n.NPCName, n.ZoneName, VariantLabel(n.IsInstance))
	}
	if n.Window.HasClose() {
		fmt.Fprintf(&b, "; window closes %s", n.Window.ClosesAt.UTC().Format("Jan 02 15:04 MST"))
	}
	fmt.Fprintf(&b, ". Last kill %s.", n.KilledAt.UTC().Format("Jan 02 15:04 MST"))
	return b.String()
}

package npc

import "time"

// Phase is where "now" falls relative to a respawn window.
type Phase string

const (
	PhasePendingWindow Phase = "PENDING_WINDOW" // now < opensAt
	PhaseOpen          Phase = "OPEN"           // opensAt <= now <= closesAt
	PhaseClosed        Phase = "CLOSED"         // now > closesAt, no newer kill
)

// Window is the next respawn opportunity after a kill. A zero OpensAt means the
// lower edge is unbounded (the NPC is considered up immediately); a zero ClosesAt
// means there is no guaranteed close.
type Window struct {
	OpensAt  time.Time
	ClosesAt time.Time
}

// ComputeWindow derives the respawn window from a definition and the anchor kill time.
// It is never persisted; callers re-derive it from the latest kill record.
func ComputeWindow(def *Definition, killedAt time.Time) Window {
	var w Window
	if def.MinRespawnMinutes.Valid && def.MinRespawnMinutes.Int32 > 0 {
		w.OpensAt = killedAt.Add(time.Duration(def.MinRespawnMinutes.Int32) * time.Minute)
	}
	if def.MaxRespawnMinutes.Valid {
		w.ClosesAt = killedAt.Add(time.Duration(def.MaxRespawnMinutes.Int32) * time.Minute)
	}
	return w
}

func (w Window) HasOpen() bool  { return !w.OpensAt.IsZero() }
func (w Window) HasClose() bool { return !w.ClosesAt.IsZero() }

// PhaseAt classifies now against the window. Both edges are inclusive.
func (w Window) PhaseAt(now time.Time) Phase {
	if w.HasOpen() && now.Before(w.OpensAt) {
		return PhasePendingWindow
	}
	if w.HasClose() && now.After(w.ClosesAt) {
		return PhaseClosed
	}
	return PhaseOpen
}

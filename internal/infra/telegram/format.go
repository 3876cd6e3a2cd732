package telegram

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"npc_respawn_tracker/internal/app"
	"npc_respawn_tracker/internal/domain/npc"
)

const timeLayout = "Jan 02 15:04 MST"

var errBadDefinitionArgs = errors.New("usage: <name> | [zone] | [min minutes] | [max minutes] | [raid,instance]")

// parseDefinitionArgs reads "name | zone | min | max | flags". Blank or "-" fields are unset.
func parseDefinitionArgs(payload string) (*npc.Definition, error) {
	parts := strings.Split(payload, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "-" {
			parts[i] = ""
		}
	}
	if len(parts) > 5 || parts[0] == "" {
		return nil, errBadDefinitionArgs
	}
	for len(parts) < 5 {
		parts = append(parts, "")
	}

	def := &npc.Definition{Name: parts[0]}
	if parts[1] != "" {
		def.ZoneName = sql.NullString{String: parts[1], Valid: true}
	}
	var err error
	if def.MinRespawnMinutes, err = optionalMinutes(parts[2]); err != nil {
		return nil, err
	}
	if def.MaxRespawnMinutes, err = optionalMinutes(parts[3]); err != nil {
		return nil, err
	}
	for _, flag := range strings.Split(parts[4], ",") {
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "":
		case "raid":
			def.IsRaidTarget = true
		case "instance":
			def.HasInstanceVersion = true
		default:
			return nil, fmt.Errorf("unknown flag %q (use raid, instance)", flag)
		}
	}
	return def, nil
}

func optionalMinutes(raw string) (sql.NullInt32, error) {
	if raw == "" {
		return sql.NullInt32{}, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return sql.NullInt32{}, fmt.Errorf("respawn minutes must be a non-negative number, got %q", raw)
	}
	return sql.NullInt32{Int32: int32(n), Valid: true}, nil
}

// parseVariant maps "instance"/"open" style arguments to the instance flag.
func parseVariant(raw string) (*bool, error) {
	var v bool
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return nil, nil
	case "instance", "inst", "i":
		v = true
	case "open", "ow", "world", "o":
		v = false
	default:
		return nil, fmt.Errorf("unknown variant %q (use instance or open)", raw)
	}
	return &v, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func formatMinutes(v sql.NullInt32) string {
	if !v.Valid {
		return "?"
	}
	return strconv.Itoa(int(v.Int32))
}

func formatDefinition(d *npc.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s (%s) respawn %s-%s min", d.ID, d.Name, d.ZoneLabel(), formatMinutes(d.MinRespawnMinutes), formatMinutes(d.MaxRespawnMinutes))
	if d.IsRaidTarget {
		b.WriteString(", raid")
	}
	if d.HasInstanceVersion {
		b.WriteString(", has instance")
	}
	return b.String()
}

func formatClarification(c *npc.PendingClarification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s: %q at %s", c.ID, c.Type, c.RawName, c.KilledAt.UTC().Format(timeLayout))
	if c.KillerName.Valid {
		fmt.Fprintf(&b, " by %s", c.KillerName.String)
	}
	if c.ZoneHint.Valid {
		fmt.Fprintf(&b, " in %s", c.ZoneHint.String)
	}
	if len(c.ZoneOptions) > 0 {
		fmt.Fprintf(&b, "; zones: %s", strings.Join(c.ZoneOptions, ", "))
	}
	return b.String()
}

func formatTimer(v app.TimerView, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s (%s, %s): ", v.Definition.ID, v.Definition.Name, v.Definition.ZoneLabel(), npc.VariantLabel(v.IsInstance))
	switch v.Phase {
	case npc.PhasePendingWindow:
		fmt.Fprintf(&b, "window opens in %s", v.Window.OpensAt.Sub(now).Round(time.Minute))
	case npc.PhaseOpen:
		b.WriteString("window open")
		if v.Window.HasClose() {
			fmt.Fprintf(&b, ", closes in %s", v.Window.ClosesAt.Sub(now).Round(time.Minute))
		}
	case npc.PhaseClosed:
		b.WriteString("should be up")
	}
	fmt.Fprintf(&b, " (killed %s)", v.LastKill.KilledAt.UTC().Format(timeLayout))
	return b.String()
}

func formatIngestReport(r *app.IngestReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kill lines: %d\nRecorded: %d\nAlready known: %d\n", r.KillEvents, r.Recorded, r.Duplicates+r.AlreadyQueued)
	for _, t := range []npc.ClarificationType{npc.ClarificationZoneAmbiguous, npc.ClarificationVariantAmbiguous, npc.ClarificationUnknownNPC} {
		if n := r.Clarifications[t]; n > 0 {
			fmt.Fprintf(&b, "Needs clarification (%s): %d\n", t, n)
		}
	}
	fmt.Fprintf(&b, "Loot lines: %d\nRoster lines: %d", r.LootEvents, r.RosterEntries)
	if r.Failed > 0 {
		fmt.Fprintf(&b, "\nFailed: %d", r.Failed)
	}
	return b.String()
}

package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
	"npc_respawn_tracker/internal/logparse"

	"github.com/sirupsen/logrus"
)

// LogUpload is one uploaded raid or client log.
type LogUpload struct {
	GuildID    int64
	RaidID     *int64
	Text       string
	ReceivedAt time.Time // Kill time for lines whose timestamp cannot be parsed
}

// IngestReport summarises what one upload produced.
type IngestReport struct {
	KillEvents     int
	Recorded       int
	Duplicates     int
	Clarifications map[npc.ClarificationType]int
	AlreadyQueued  int
	LootEvents     int
	RosterEntries  int
	Failed         int
}

// IngestService turns uploaded log text into kills and clarifications.
type IngestService struct {
	registry   *logparse.Registry
	correlator *KillCorrelator
	logger     *logrus.Entry
}

func NewIngestService(registry *logparse.Registry, correlator *KillCorrelator, logger *logrus.Entry) *IngestService {
	return &IngestService{registry: registry, correlator: correlator, logger: logger}
}

// IngestLog correlates kill lines in line order. Zone-entry lines set the zone hint
// for the kill lines that follow them. A failing line is counted and skipped.
func (s *IngestService) IngestLog(ctx context.Context, up LogUpload) (*IngestReport, error) {
	extractor, err := s.registry.ForGuild(up.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to compile log templates: %w", err)
	}
	if up.ReceivedAt.IsZero() {
		up.ReceivedAt = utcNow()
	}
	log := s.logger.WithField("guild_id", up.GuildID)
	report := &IngestReport{Clarifications: make(map[npc.ClarificationType]int)}

	for range logparse.ParseRoster(up.Text) {
		report.RosterEntries++
	}

	zone := ""
	seen := make(map[string]int) // Occurrences of each timestamp-less kill line
	for ev := range extractor.Events(up.Text) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch ev.Kind {
		case logparse.EventZone:
			zone = ev.Field("zone")
			continue
		case logparse.EventLoot:
			report.LootEvents++
			continue
		case logparse.EventKill:
		default:
			continue
		}

		report.KillEvents++
		obs := npc.Observation{
			GuildID:  up.GuildID,
			RaidID:   up.RaidID,
			RawName:  ev.Field("npc"),
			KilledAt: ev.Timestamp,
			Killer:   ev.Field("killer"),
			ZoneHint: zone,
		}
		if obs.KilledAt.IsZero() {
			// The receive time differs per upload, so the line itself keys the signature.
			obs.KilledAt = up.ReceivedAt
			obs.SourceKey = lineKey(ev.Raw, seen)
		}
		res, err := s.correlator.Correlate(ctx, obs)
		if err != nil {
			report.Failed++
			log.WithError(err).WithField("line", ev.Line).Warn("Failed to correlate kill line")
			continue
		}
		switch res.Outcome {
		case OutcomeRecorded:
			report.Recorded++
		case OutcomeDuplicate:
			report.Duplicates++
		case OutcomeClarificationCreated:
			report.Clarifications[res.Clarification.Type]++
		case OutcomeAlreadyQueued:
			report.AlreadyQueued++
		}
	}

	log.WithFields(logrus.Fields{
		"kills":      report.KillEvents,
		"recorded":   report.Recorded,
		"duplicates": report.Duplicates,
		"loot":       report.LootEvents,
		"roster":     report.RosterEntries,
		"failed":     report.Failed,
	}).Info("Log ingested")
	return report, nil
}

// lineKey keys a timestamp-less line by its trimmed text and how many identical
// lines preceded it, so re-uploading the same log yields the same keys.
func lineKey(raw string, seen map[string]int) string {
	raw = strings.TrimSpace(raw)
	seen[raw]++
	return raw + "#" + strconv.Itoa(seen[raw])
}

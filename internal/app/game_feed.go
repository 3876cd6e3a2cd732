package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"npc_respawn_tracker/internal/domain/npc"
	"npc_respawn_tracker/internal/infra/gamedb"

	"github.com/sirupsen/logrus"
)

// FeedReport summarises one poll of the game kill feed.
type FeedReport struct {
	Rows           int
	Recorded       int
	Duplicates     int
	Clarifications int
	Failed         int
}

// GameFeed correlates kills reported by the game server's kill feed. Rows are
// re-read while they stay within the lookback; signatures make that a no-op.
type GameFeed struct {
	correlator *KillCorrelator
	guildID    int64
	lookback   time.Duration
	logger     *logrus.Entry
	now        func() time.Time
}

func NewGameFeed(correlator *KillCorrelator, guildID int64, lookback time.Duration, logger *logrus.Entry) *GameFeed {
	return &GameFeed{
		correlator: correlator,
		guildID:    guildID,
		lookback:   lookback,
		logger:     logger,
		now:        utcNow,
	}
}

// Poll is the poller task: it reads recent feed rows and correlates them in order.
func (f *GameFeed) Poll(ctx context.Context, conn *sql.Conn) (FeedReport, error) {
	var report FeedReport
	rows, err := gamedb.RecentKills(ctx, conn, f.now().Add(-f.lookback))
	if err != nil {
		return report, fmt.Errorf("failed to read game kill feed: %w", err)
	}
	report.Rows = len(rows)

	for _, row := range rows {
		isInstance := row.IsInstance()
		obs := npc.Observation{
			GuildID:    f.guildID,
			RawName:    row.NPCName,
			KilledAt:   row.KilledAt,
			Killer:     row.KillerName.String,
			ZoneHint:   row.ZoneName.String,
			IsInstance: &isInstance,
		}
		res, err := f.correlator.Correlate(ctx, obs)
		if err != nil {
			report.Failed++
			f.logger.WithError(err).WithField("feed_id", row.ID).Warn("Failed to correlate game kill")
			continue
		}
		switch res.Outcome {
		case OutcomeRecorded:
			report.Recorded++
		case OutcomeClarificationCreated:
			report.Clarifications++
		default:
			report.Duplicates++
		}
	}
	return report, nil
}

// LogReport is the poller's result callback.
func (f *GameFeed) LogReport(r FeedReport) {
	if r.Recorded+r.Clarifications+r.Failed == 0 {
		return
	}
	f.logger.WithFields(logrus.Fields{
		"rows":           r.Rows,
		"recorded":       r.Recorded,
		"clarifications": r.Clarifications,
		"failed":         r.Failed,
	}).Info("Game kill feed polled")
}

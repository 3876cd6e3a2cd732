package scheduler

import (
	"context"
	"time"

	"npc_respawn_tracker/internal/app"
	"npc_respawn_tracker/internal/infra/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// NotificationRunner is the tick the scheduler drives.
type NotificationRunner interface {
	Tick(ctx context.Context) (app.TickReport, error)
}

// NotificationScheduler runs the respawn notification tick on a cron spec.
type NotificationScheduler struct {
	cronEngine *cron.Cron
	runner     NotificationRunner
	logger     *logrus.Entry
	cronSpec   string
	timeout    time.Duration
}

func NewNotificationScheduler(runner NotificationRunner, entry *logrus.Entry, cronSpec string) *NotificationScheduler {
	cronLogger := logger.Cron(entry)
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:   runner,
		logger:   entry,
		cronSpec: cronSpec,
		timeout:  time.Minute,
	}
}

func (s *NotificationScheduler) Start() error {
	s.logger.WithField("spec", s.cronSpec).Info("Starting notification scheduler")
	if _, err := s.cronEngine.AddFunc(s.cronSpec, s.runTick); err != nil {
		return err
	}
	s.cronEngine.Start()
	return nil
}

func (s *NotificationScheduler) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.runner.Tick(ctx); err != nil {
		s.logger.WithError(err).Error("Notification tick failed")
	}
}

// Stop removes pending runs and waits for a running tick.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}

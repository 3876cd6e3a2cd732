package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"npc_respawn_tracker/internal/infra/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MinPollInterval is the shortest interval a Poller accepts.
const MinPollInterval = time.Second

// ConnSource hands out single-use connections to the external database.
type ConnSource interface {
	Configured() bool
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Task runs once per tick against a connection that is released afterwards.
type Task[T any] func(ctx context.Context, conn *sql.Conn) (T, error)

// PollerConfig describes one periodic task.
type PollerConfig[T any] struct {
	Name       string
	Interval   time.Duration // Clamped to MinPollInterval
	Timeout    time.Duration // Per tick; defaults to the interval
	Task       Task[T]
	OnResult   func(T)     // Successful ticks only
	OnError    func(error) // Connection and task failures
	RunOnStart bool
}

// Poller runs a Task on a fixed interval with at most one invocation in flight.
// A tick that fires while the previous one is still running is skipped.
type Poller[T any] struct {
	cfg    PollerConfig[T]
	source ConnSource
	cron   *cron.Cron
	logger *logrus.Entry

	mu       sync.Mutex
	started  bool
	stopped  bool
	inFlight bool
	running  sync.WaitGroup
}

func NewPoller[T any](source ConnSource, cfg PollerConfig[T], entry *logrus.Entry) *Poller[T] {
	if cfg.Interval < MinPollInterval {
		cfg.Interval = MinPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	entry = entry.WithField("poller", cfg.Name)
	return &Poller[T]{
		cfg:    cfg,
		source: source,
		cron:   cron.New(cron.WithLogger(logger.Cron(entry))),
		logger: entry,
	}
}

// Interval is the effective (clamped) interval.
func (p *Poller[T]) Interval() time.Duration {
	return p.cfg.Interval
}

// Start schedules the task. An unconfigured source leaves polling disabled.
func (p *Poller[T]) Start() error {
	if !p.source.Configured() {
		p.logger.Info("Game database not configured; polling disabled")
		return nil
	}
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("poller %s already started", p.cfg.Name)
	}
	p.started = true
	p.mu.Unlock()

	p.cron.Schedule(cron.Every(p.cfg.Interval), cron.FuncJob(p.tick))
	p.cron.Start()
	if p.cfg.RunOnStart {
		go p.tick()
	}
	p.logger.WithField("interval", p.cfg.Interval).Info("Poller started")
	return nil
}

// Stop prevents any further invocation, including ticks already scheduled, and
// waits for an in-flight invocation to finish. It is safe to call more than once.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if started {
		<-p.cron.Stop().Done()
	}
	p.running.Wait()
	p.logger.Info("Poller stopped")
}

// begin claims the in-flight slot.
func (p *Poller[T]) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	if p.inFlight {
		p.logger.Debug("Previous tick still running; skipping")
		return false
	}
	p.inFlight = true
	p.running.Add(1)
	return true
}

func (p *Poller[T]) end() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
	p.running.Done()
}

func (p *Poller[T]) tick() {
	if !p.begin() {
		return
	}
	defer p.end()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	result, err := p.run(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Poll tick failed")
		if p.cfg.OnError != nil {
			p.cfg.OnError(err)
		}
		return
	}
	if p.cfg.OnResult != nil {
		p.cfg.OnResult(result)
	}
}

func (p *Poller[T]) run(ctx context.Context) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll task panicked: %v", r)
		}
	}()
	conn, err := p.source.Conn(ctx)
	if err != nil {
		return result, err
	}
	defer conn.Close()
	return p.cfg.Task(ctx, conn)
}

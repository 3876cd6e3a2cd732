package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"npc_respawn_tracker/internal/infra/config"
	"npc_respawn_tracker/internal/infra/gamedb"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func sqlitePool(t *testing.T) *gamedb.Pool {
	t.Helper()
	cfg := config.GameDBConfig{Driver: "sqlite", Host: "localhost", User: "ro", Name: "game", Port: 3306, PoolSize: 2}
	dsn := filepath.Join(t.TempDir(), "game.db")
	p := gamedb.NewPool(cfg, testLogger(), gamedb.WithOpener(dsn, sql.Open), gamedb.WithRetry(1, time.Millisecond))
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPoller_IntervalClamp(t *testing.T) {
	p := NewPoller(sqlitePool(t), PollerConfig[int]{Name: "clamp", Interval: 10 * time.Millisecond}, testLogger())
	if p.Interval() != MinPollInterval {
		t.Errorf("Interval() = %v, want %v", p.Interval(), MinPollInterval)
	}
}

func TestPoller_SingleInvocationInFlight(t *testing.T) {
	var active, maxActive, calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	p := NewPoller(sqlitePool(t), PollerConfig[int]{
		Name:     "slow",
		Interval: time.Hour,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			calls.Add(1)
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			started <- struct{}{}
			<-release
			active.Add(-1)
			return 1, nil
		},
	}, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.tick()
	}()
	<-started

	// Ticks firing while the slow one runs are skipped, not queued.
	for i := 0; i < 5; i++ {
		p.tick()
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("task calls = %d, want 1", got)
	}
	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent invocations = %d, want 1", got)
	}

	// The slot is free again afterwards.
	release = make(chan struct{})
	close(release)
	p.tick()
	if got := calls.Load(); got != 2 {
		t.Errorf("task calls after release = %d, want 2", got)
	}
}

func TestPoller_CallbacksAndErrorsDoNotStopLoop(t *testing.T) {
	var results []int
	var errs []error
	fail := true
	p := NewPoller(sqlitePool(t), PollerConfig[int]{
		Name:     "flaky",
		Interval: time.Hour,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			if err := conn.PingContext(ctx); err != nil {
				return 0, err
			}
			if fail {
				fail = false
				return 0, errors.New("query failed")
			}
			return 42, nil
		},
		OnResult: func(n int) { results = append(results, n) },
		OnError:  func(err error) { errs = append(errs, err) },
	}, testLogger())

	p.tick()
	p.tick()

	if len(errs) != 1 {
		t.Errorf("errors = %v, want exactly one", errs)
	}
	if len(results) != 1 || results[0] != 42 {
		t.Errorf("results = %v, want [42]", results)
	}
}

func TestPoller_PanicIsReportedAsError(t *testing.T) {
	var got error
	p := NewPoller(sqlitePool(t), PollerConfig[int]{
		Name:     "panicky",
		Interval: time.Hour,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			panic("boom")
		},
		OnError: func(err error) { got = err },
	}, testLogger())
	p.tick()
	if got == nil {
		t.Fatal("OnError not called for panicking task")
	}
}

func TestPoller_StopPreventsFurtherTicks(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(sqlitePool(t), PollerConfig[int]{
		Name:     "stoppable",
		Interval: time.Hour,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			calls.Add(1)
			return 0, nil
		},
	}, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Stop()
	p.Stop()

	// A tick already handed to a goroutine by the timer must not run after Stop.
	p.tick()
	if got := calls.Load(); got != 0 {
		t.Errorf("task calls after Stop = %d, want 0", got)
	}
	if err := p.Start(); err == nil {
		t.Error("Start() after Stop succeeded, want error")
	}
}

func TestPoller_StopWaitsForInFlightTick(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var finished atomic.Bool
	p := NewPoller(sqlitePool(t), PollerConfig[int]{
		Name:     "inflight",
		Interval: time.Hour,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			close(started)
			<-release
			finished.Store(true)
			return 0, nil
		},
	}, testLogger())
	go p.tick()
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-stopped
	if !finished.Load() {
		t.Error("in-flight tick was not allowed to complete")
	}
}

func TestPoller_UnconfiguredSourceDisablesPolling(t *testing.T) {
	pool := gamedb.NewPool(config.GameDBConfig{PoolSize: 1}, testLogger())
	var calls atomic.Int32
	p := NewPoller(pool, PollerConfig[int]{
		Name:       "disabled",
		Interval:   time.Second,
		RunOnStart: true,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			calls.Add(1)
			return 0, nil
		},
	}, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Stop()
	if got := calls.Load(); got != 0 {
		t.Errorf("task calls = %d, want 0", got)
	}
}

func TestPoller_RunOnStart(t *testing.T) {
	done := make(chan struct{})
	p := NewPoller(sqlitePool(t), PollerConfig[int]{
		Name:       "eager",
		Interval:   time.Hour,
		RunOnStart: true,
		Task: func(ctx context.Context, conn *sql.Conn) (int, error) {
			close(done)
			return 0, nil
		},
	}, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run on start")
	}
}

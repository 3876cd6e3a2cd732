// Package gamedb provides read-only access to the live game server database.
package gamedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"npc_respawn_tracker/internal/infra/config"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned by operations that need the game database when
// no connection settings were provided.
var ErrNotConfigured = errors.New("game database is not configured")

// State is either Unconfigured or Ready.
type State interface {
	isState()
}

// Unconfigured means polling and lookups are disabled.
type Unconfigured struct{}

// Ready holds the constructed pool.
type Ready struct {
	DB *sql.DB
}

func (Unconfigured) isState() {}
func (Ready) isState()        {}

// Opener opens a database handle. sql.Open is used unless overridden.
type Opener func(driver, dsn string) (*sql.DB, error)

// Pool is the process-wide bounded connection pool to the game database.
// It is built on first use, and a failed build is retried on the next access.
type Pool struct {
	cfg    config.GameDBConfig
	open   Opener
	dsn    string
	logger *logrus.Entry

	attempts uint
	delay    time.Duration

	mu sync.Mutex
	db *sql.DB
}

// PoolOption customises a Pool.
type PoolOption func(*Pool)

// WithOpener replaces sql.Open and the generated DSN.
func WithOpener(dsn string, open Opener) PoolOption {
	return func(p *Pool) {
		p.dsn = dsn
		p.open = open
	}
}

// WithRetry sets how many times construction is attempted per access.
func WithRetry(attempts uint, delay time.Duration) PoolOption {
	return func(p *Pool) {
		p.attempts = attempts
		p.delay = delay
	}
}

func NewPool(cfg config.GameDBConfig, logger *logrus.Entry, opts ...PoolOption) *Pool {
	p := &Pool{
		cfg:      cfg,
		open:     sql.Open,
		logger:   logger,
		attempts: 3,
		delay:    500 * time.Millisecond,
	}
	if cfg.Configured() {
		p.dsn = FormatDSN(cfg)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FormatDSN builds the driver DSN for a MySQL-compatible game server.
func FormatDSN(cfg config.GameDBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 5 * time.Second
	mc.ReadTimeout = 30 * time.Second
	return mc.FormatDSN()
}

func (p *Pool) Configured() bool {
	return p.cfg.Configured()
}

// Init builds the pool eagerly. An unconfigured pool is not an error.
func (p *Pool) Init(ctx context.Context) error {
	_, err := p.State(ctx)
	return err
}

// State returns Unconfigured, or Ready after building the pool if needed.
func (p *Pool) State(ctx context.Context) (State, error) {
	if !p.Configured() {
		return Unconfigured{}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return Ready{DB: p.db}, nil
	}

	var db *sql.DB
	err := retry.Do(
		func() error {
			handle, err := p.open(p.cfg.Driver, p.dsn)
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			handle.SetMaxOpenConns(p.cfg.PoolSize)
			handle.SetMaxIdleConns(p.cfg.PoolSize)
			handle.SetConnMaxLifetime(5 * time.Minute)

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := handle.PingContext(pingCtx); err != nil {
				handle.Close()
				return fmt.Errorf("ping: %w", err)
			}
			db = handle
			return nil
		},
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			p.logger.WithError(err).WithField("attempt", n+1).Warn("Retrying game database connection")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to game database: %w", err)
	}
	p.db = db
	p.logger.WithFields(logrus.Fields{
		"driver":    p.cfg.Driver,
		"host":      p.cfg.Host,
		"pool_size": p.cfg.PoolSize,
	}).Info("Game database pool ready")
	return Ready{DB: db}, nil
}

// Conn acquires one connection for a single logical operation. Callers close it.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	st, err := p.State(ctx)
	if err != nil {
		return nil, err
	}
	switch s := st.(type) {
	case Ready:
		conn, err := s.DB.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire game database connection: %w", err)
		}
		return conn, nil
	case Unconfigured:
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unexpected game database state %T", st)
	}
}

// Close releases the pool. A later access builds a new one.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if err != nil {
		return fmt.Errorf("failed to close game database pool: %w", err)
	}
	p.logger.Info("Game database pool closed")
	return nil
}

// Package database owns the PostgreSQL pool: opening it through pgx,
// confirming reachability at startup, and closing it on shutdown.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/tally/pkg/lifecycle"
	"github.com/JaimeStill/tally/pkg/retry"
)

// ErrNotReady is returned by Ping until the startup ping has succeeded.
var ErrNotReady = errors.New("database not ready")

// System is the pool plus its readiness state.
type System interface {
	lifecycle.ReadinessChecker

	Connection() *sql.DB
	// Ping checks the pool within the configured connect timeout.
	Ping(ctx context.Context) error
	// Start registers the startup ping and the shutdown close.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn   *sql.DB
	logger *slog.Logger
	policy retry.Policy
	ready  atomic.Bool
}

// New opens the pool without connecting. Reachability is established by
// the startup hook registered in Start.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:   db,
		logger: logger.With("system", "database"),
		policy: retry.Policy{
			MaxRetries:      uint64(cfg.ConnRetries),
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     4 * time.Second,
			AttemptTimeout:  cfg.ConnTimeoutDuration(),
		},
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ready() bool {
	return d.ready.Load()
}

func (d *database) Ping(ctx context.Context) error {
	if !d.ready.Load() {
		return ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, d.policy.AttemptTimeout)
	defer cancel()
	return d.conn.PingContext(ctx)
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("database", func() {
		if err := d.connect(lc.Context()); err != nil {
			d.logger.Error("database unreachable", "error", err)
			return
		}
		d.ready.Store(true)
		d.logger.Info("database connection established")
	})

	lc.OnShutdown("database", func() {
		<-lc.Drained()
		d.ready.Store(false)

		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}
		d.logger.Info("database connection closed")
	})

	return nil
}

// connect pings until the database answers, giving a database that is
// still starting alongside the service time to come up.
func (d *database) connect(ctx context.Context) error {
	_, err := retry.Do(ctx, d.policy,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, d.conn.PingContext(ctx)
		},
		func(attempt int, err error, wait time.Duration) {
			d.logger.Warn("database ping failed", "attempt", attempt, "retry_in", wait, "error", err)
		},
	)
	return err
}

package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/tally/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

type options struct {
	dsn      string
	up       bool
	down     bool
	steps    int
	version  bool
	force    int
	forceSet bool
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var opts options
	flag.StringVar(&opts.dsn, "dsn", "", "Database connection string (default from config.toml and TALLY_DB_* variables)")
	flag.BoolVar(&opts.up, "up", false, "Apply all pending migrations")
	flag.BoolVar(&opts.down, "down", false, "Revert all migrations")
	flag.IntVar(&opts.steps, "steps", 0, "Migrate N steps (positive=up, negative=down)")
	flag.BoolVar(&opts.version, "version", false, "Print the current schema version")
	flag.IntVar(&opts.force, "force", -1, "Force the schema version without migrating")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "force" {
			opts.forceSet = true
		}
	})

	if !opts.up && !opts.down && !opts.version && !opts.forceSet && opts.steps == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dsn <dsn>] -up | -down | -steps N | -version | -force N")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if opts.dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Error("load config failed", "error", err)
			os.Exit(1)
		}
		opts.dsn = cfg.Database.Dsn()
	}

	if err := run(logger, opts); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, opts options) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, opts.dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	switch {
	case opts.version:
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("schema not initialized")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		logger.Info("schema version", "version", v, "dirty", dirty)
		return nil
	case opts.forceSet:
		if err := m.Force(opts.force); err != nil {
			return fmt.Errorf("force version %d: %w", opts.force, err)
		}
		logger.Info("schema version forced", "version", opts.force)
		return nil
	case opts.up:
		err = m.Up()
	case opts.down:
		err = m.Down()
	default:
		err = m.Steps(opts.steps)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	v, _, _ := m.Version()
	logger.Info("migrations applied", "version", v)
	return nil
}

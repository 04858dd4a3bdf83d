// Package app wires a workspace directory into a ready engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"lifeswap/internal/config"
	"lifeswap/internal/db"
	"lifeswap/internal/engine"
	"lifeswap/internal/logger"
	"lifeswap/internal/migrate"
)

type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Log    *logger.Logger
	Engine engine.Engine
}

type Options struct {
	// LogMode overrides config log.mode when set.
	LogMode string
	Log     *logger.Logger
}

// Open loads lifeswap.yml, opens and migrates the database and builds the engine.
func Open(ctx context.Context, dir string, opts Options) (*Workspace, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		mode := cfg.Log.Mode
		if opts.LogMode != "" {
			mode = opts.LogMode
		}
		if log, err = logger.New(mode); err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	version, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng, err := engine.New(conn, cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug("workspace opened", "dir", dir, "db", db.Path(dir), "schema_version", version)
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Log: log, Engine: eng}, nil
}

func (w *Workspace) Close() error {
	w.Log.Sync()
	return w.DB.Close()
}

package main

import (
	"context"
	"fmt"

	"github.com/evalflow/evalflow/internal/config"
	"github.com/evalflow/evalflow/internal/storage"
	"github.com/evalflow/evalflow/internal/storage/postgres"
	"github.com/evalflow/evalflow/internal/storage/sqlite"
)

// openStore opens the backend selected by cfg. For SQLite the path comes
// from the --db flag, then storage.path, then discovery in the working
// directory. The returned string describes where the data lives.
func openStore(ctx context.Context, cfg *config.Config, flagPath string) (storage.Storage, string, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pg := cfg.Storage.Postgres
		pgCfg := postgres.DefaultConfig()
		pgCfg.Host = pg.Host
		pgCfg.Port = pg.Port
		pgCfg.Database = pg.Database
		pgCfg.User = pg.User
		pgCfg.Password = pg.Password
		pgCfg.SSLMode = pg.SSLMode
		pgCfg.MaxConns = pg.MaxConns
		pgCfg.MinConns = pg.MinConns

		s, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, fmt.Sprintf("postgres://%s:%d/%s", pg.Host, pg.Port, pg.Database), nil

	default:
		path := flagPath
		if path == "" {
			path = cfg.Storage.Path
		}
		if path == "" {
			var err error
			if path, err = storage.DiscoverDatabase(); err != nil {
				return nil, "", err
			}
		}
		s, err := sqlite.New(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database %s: %w", path, err)
		}
		return s, path, nil
	}
}

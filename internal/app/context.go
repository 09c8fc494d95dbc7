package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"deliberation/internal/config"
	"deliberation/internal/db"
	"deliberation/internal/engine"
	"deliberation/internal/migrate"
)

// Workspace is an opened simulation workspace: migrated database, engine and
// the scenario it was seeded from.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Engine engine.Engine
	Config *config.Config
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open migrates the workspace database and, when it holds no characters yet,
// seeds it from deliberation.yml or the built-in scenario.
func Open(ctx context.Context, dir, actorID string, logger *zap.Logger) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, logger)
	ws := &Workspace{Dir: dir, DB: conn, Engine: e, Config: cfg}
	if err := ws.seedIfEmpty(ctx, actorID); err != nil {
		conn.Close()
		return nil, err
	}
	return ws, nil
}

func (w *Workspace) seedIfEmpty(ctx context.Context, actorID string) error {
	n, err := w.Engine.Repo.CountCharacters(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := w.Engine.SeedScenario(ctx, w.Config, actorID); err != nil {
		return fmt.Errorf("seed scenario: %w", err)
	}
	return nil
}

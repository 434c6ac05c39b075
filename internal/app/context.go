package app

import (
	"database/sql"
	"fmt"

	"cadence/internal/config"
	"cadence/internal/db"
	"cadence/internal/engine"
	"cadence/internal/migrate"
)

// Workspace bundles an opened workspace database with its config.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// ResolveConfig loads cadence.yml from the workspace, seeding defaults for
// user when the file is missing. A non-empty user overrides the file.
func ResolveConfig(workspace, user string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(user)
	}
	if user != "" {
		cfg.User = user
	}
	return cfg, nil
}

// Open ensures the workspace exists, migrates its database and builds an
// engine over it.
func Open(workspace, user string) (*Workspace, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := ResolveConfig(workspace, user)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{
		Dir:    workspace,
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

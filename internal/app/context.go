package app

import (
	"context"
	"errors"
	"fmt"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/migrate"
	"assetline/internal/repo"
)

// Open brings up the workspace end to end: database, migrations, capability
// configuration and engine. The workspace config file wins over the built-in
// defaults when present.
func Open(workspace string) (engine.Engine, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, fmt.Errorf("load config: %w", err)
	}
	eng, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return engine.Engine{}, err
	}
	return eng, nil
}

// EnsureActor resolves the acting user, seeding a bootstrap super admin the
// first time an empty workspace is touched. Subsequent unknown actors are an
// error; users are created through user management, not on the fly.
func EnsureActor(ctx context.Context, eng engine.Engine, actorID string) (domain.User, error) {
	if actorID == "" {
		actorID = "local-admin"
	}
	u, err := eng.Repo.GetUser(ctx, actorID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	users, err := eng.Repo.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) > 0 {
		return domain.User{}, fmt.Errorf("unknown user %s", actorID)
	}
	return eng.CreateUser(ctx, "", actorID, actorID, domain.RoleSuperAdmin)
}

// Close releases the engine's database handle.
func Close(eng engine.Engine) error {
	if eng.DB == nil {
		return nil
	}
	return eng.DB.Close()
}

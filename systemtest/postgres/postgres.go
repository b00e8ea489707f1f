package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/EternisAI/silo-runners/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	dbUser     = "silo"
	dbPassword = "silo"
	dbName     = "silo_runners"
)

// Instance is a migrated throwaway database.
type Instance struct {
	Container *postgres.PostgresContainer
	URL       string
	Pool      *pgxpool.Pool
}

func StartPostgres(ctx context.Context) (*postgres.PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		postgres.WithDatabase(dbName),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Postgres container: %w", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container state: %w", err)
	}

	if !state.Running {
		return nil, fmt.Errorf("postgres container is not running")
	}

	return container, nil
}

// StartMigrated starts a container, applies every migration and opens a pool.
func StartMigrated(ctx context.Context) (*Instance, error) {
	container, err := StartPostgres(ctx)
	if err != nil {
		return nil, err
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if err := db.RunMigrations(ctx, url, "public"); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := db.InitDB(ctx, db.Config{Url: url, MaxConns: 20})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Instance{Container: container, URL: url, Pool: pool}, nil
}

func (i *Instance) Terminate(ctx context.Context) error {
	if i.Pool != nil {
		i.Pool.Close()
	}
	return TerminatePostgres(ctx, i.Container)
}

func TerminatePostgres(ctx context.Context, container *postgres.PostgresContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate Postgres container: %w", err)
	}
	return nil
}

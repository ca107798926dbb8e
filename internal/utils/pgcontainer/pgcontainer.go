// Package pgcontainer spins up a disposable Postgres in Docker for
// repository tests.
package pgcontainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"github.com/luchan-pos/avocado-bonus/internal/model"
)

const (
	containerLifetimeSec = 300
	connectTimeout       = 120 * time.Second
)

type PGContainer struct {
	log      *slog.Logger
	pool     *dockertest.Pool
	resource *dockertest.Resource
	dsn      string
}

func New(log *slog.Logger) *PGContainer {
	return &PGContainer{log: log}
}

func (c *PGContainer) RunContainer() error {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return fmt.Errorf("failed to construct docker pool: %w", err)
	}
	if err = pool.Client.Ping(); err != nil {
		return fmt.Errorf("failed to connect to docker: %w", err)
	}
	c.pool = pool

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "postgres",
			Tag:        "16-alpine",
			Env: []string{
				"POSTGRES_USER=bonus",
				"POSTGRES_PASSWORD=bonus",
				"POSTGRES_DB=bonus_test",
				"listen_addresses = '*'",
			},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		})
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}
	c.resource = resource

	if err = resource.Expire(containerLifetimeSec); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelWarn,
			"failed to set container expiration",
			slog.Any(model.KeyLoggerError, err),
		)
	}

	hostAndPort := resource.GetHostPort("5432/tcp")
	c.dsn = fmt.Sprintf(
		"postgres://bonus:bonus@%s/bonus_test?sslmode=disable", hostAndPort)

	pool.MaxWait = connectTimeout
	if err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn, err := pgx.Connect(ctx, c.dsn)
		if err != nil {
			return fmt.Errorf("postgres is not ready: %w", err)
		}
		defer func() { _ = conn.Close(ctx) }()
		return conn.Ping(ctx) //nolint: wrapcheck // retried until nil
	}); err != nil {
		return fmt.Errorf("failed to connect to containerized postgres: %w", err)
	}

	c.log.LogAttrs(context.TODO(),
		slog.LevelInfo,
		"test postgres is up",
		slog.String("dsn", c.dsn),
	)
	return nil
}

func (c *PGContainer) GetDSN() string {
	return c.dsn
}

func (c *PGContainer) Close() {
	if c.pool == nil || c.resource == nil {
		return
	}
	if err := c.pool.Purge(c.resource); err != nil {
		c.log.LogAttrs(context.TODO(),
			slog.LevelError,
			"failed to purge postgres container",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

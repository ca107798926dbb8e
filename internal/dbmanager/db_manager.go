package dbmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luchan-pos/avocado-bonus/migrations"
)

// DBManager prepares the connection pool for the repositories. The setup
// methods chain and remember the first failure:
//
//	db.Connect(ctx).Ping(ctx).ApplyMigrations(ctx)
//	if err := db.Error(); err != nil { ... }
type DBManager struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	err  error
	dsn  string
}

func New(dsn string, log *slog.Logger) *DBManager {
	return &DBManager{
		log: log,
		dsn: dsn,
	}
}

func (m *DBManager) Connect(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}

	cfg, err := pgxpool.ParseConfig(m.dsn)
	if err != nil {
		m.err = fmt.Errorf("failed to parse DSN: %w", err)
		return m
	}
	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.ConnConfig.Tracer = &queryTracer{m.log}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		m.err = fmt.Errorf("failed to init pgxpool: %w", err)
		return m
	}

	m.pool = pool
	return m
}

func (m *DBManager) Ping(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}
	if m.pool == nil {
		m.err = errors.New("ping before connect")
		return m
	}

	if err := m.pool.Ping(ctx); err != nil {
		m.err = fmt.Errorf("failed to ping the DB: %w", err)
	}
	return m
}

func (m *DBManager) ApplyMigrations(ctx context.Context) *DBManager {
	if m.err != nil {
		return m
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		m.err = fmt.Errorf("failed to open migration source: %w", err)
		return m
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", src, m.dsn)
	if err != nil {
		m.err = fmt.Errorf("failed to init migrator: %w", err)
		return m
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if srcErr != nil || dbErr != nil {
			m.log.LogAttrs(ctx,
				slog.LevelWarn,
				"failed to close migrator",
				slog.Any("source_error", srcErr),
				slog.Any("db_error", dbErr),
			)
		}
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		m.err = fmt.Errorf("failed to apply migrations: %w", err)
		return m
	}

	m.log.LogAttrs(ctx, slog.LevelInfo, "migrations are up to date")
	return m
}

func (m *DBManager) Error() error {
	return m.err
}

func (m *DBManager) GetPool(_ context.Context) (*pgxpool.Pool, error) {
	if m.pool == nil {
		return nil, errors.New("DB is not connected")
	}
	return m.pool, nil
}

func (m *DBManager) Close() {
	if m.pool == nil {
		return
	}

	m.pool.Close()
	m.log.LogAttrs(context.TODO(),
		slog.LevelInfo,
		"connection to DB closed",
	)
}

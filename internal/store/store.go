// Package store archives generation snapshots and cycle outcomes in
// PostgreSQL.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 8 {
		// writes come from the breath loop and a handful of API readers
		cfg.MaxConns = 8
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool, logger: logger}, nil
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name        TEXT PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate applies the .up.sql files in migrationsDir that have not been
// applied yet, in name order, each in its own transaction. It returns the
// names it applied.
func (s *Store) Migrate(ctx context.Context, migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)

	if _, err := s.db.Exec(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	var applied []string
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", f, err)
		}
		ran, err := s.applyMigration(ctx, f, string(data))
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, f)
			s.logger.Info("Migration applied", zap.String("file", f))
		}
	}
	return applied, nil
}

func (s *Store) applyMigration(ctx context.Context, name, sql string) (bool, error) {
	ran := false
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			return err
		}
		ran = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exec migration %s: %w", name, err)
	}
	return ran, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS upload_jobs (
	name       TEXT PRIMARY KEY,
	descriptor JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps the descriptor in a single row of upload_jobs.
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgresStore connects, verifies the connection and creates the table.
func NewPostgresStore(ctx context.Context, dsn, name string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 2
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	slog.Info("connected to PostgreSQL job store", "component", "jobstore", "name", name)
	return &PostgresStore{pool: pool, name: name}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Descriptor, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT descriptor FROM upload_jobs WHERE name = $1`, s.name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("load descriptor: %w", err)
	}
	return decode(data)
}

func (s *PostgresStore) Save(ctx context.Context, d *Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	query := `
		INSERT INTO upload_jobs (name, descriptor, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name)
		DO UPDATE SET descriptor = EXCLUDED.descriptor, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, s.name, data); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM upload_jobs WHERE name = $1`, s.name); err != nil {
		return fmt.Errorf("clear descriptor: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

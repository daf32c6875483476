package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresRecorder persists verification events to a PostgreSQL table.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRecorder creates a PostgresRecorder backed by the given pool.
func NewPostgresRecorder(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRecorder {
	return &PostgresRecorder{pool: pool, logger: logger}
}

// EnsureSchema creates the verification_events table if it is missing.
func (p *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS verification_events (
			id           UUID PRIMARY KEY,
			kind         TEXT NOT NULL,
			token_digest TEXT NOT NULL,
			remote_ip    TEXT NOT NULL,
			path         TEXT NOT NULL,
			action       TEXT NOT NULL DEFAULT '',
			hostname     TEXT NOT NULL DEFAULT '',
			score        DOUBLE PRECISION,
			success      BOOLEAN NOT NULL,
			fake         BOOLEAN NOT NULL,
			took_ms      BIGINT NOT NULL,
			at           TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create verification_events table: %w", err)
	}
	return nil
}

// Record implements Recorder.
func (p *PostgresRecorder) Record(ctx context.Context, ev *Event) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO verification_events
			(id, kind, token_digest, remote_ip, path, action, hostname, score, success, fake, took_ms, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ev.ID, ev.Kind, ev.TokenDigest, ev.RemoteIP, ev.Path, ev.Action,
		ev.Hostname, ev.Score, ev.Success, ev.Fake, ev.Took.Milliseconds(), ev.At,
	)
	if err != nil {
		p.logger.Warn("audit: record verification event", zap.Error(err))
		return fmt.Errorf("insert verification event: %w", err)
	}
	return nil
}

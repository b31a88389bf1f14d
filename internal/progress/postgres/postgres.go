// Package postgres implements a [progress.Recorder] that keeps one row per
// learner and day, counting speaking attempts and tracking the best
// pronunciation score.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/speakeasy/internal/progress"
)

// Schema is the DDL for the progress tables. [Open] applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_progress (
    user_id             TEXT NOT NULL,
    day                 TEXT NOT NULL,
    speak               INTEGER NOT NULL DEFAULT 0,
    pronunciation_score INTEGER NOT NULL DEFAULT 0,
    last_statement      INTEGER NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, day)
);
CREATE TABLE IF NOT EXISTS practice_attempts (
    id            UUID PRIMARY KEY,
    user_id       TEXT NOT NULL,
    day           TEXT NOT NULL,
    statement     INTEGER NOT NULL DEFAULT 0,
    status        TEXT NOT NULL,
    word_accuracy DOUBLE PRECISION NOT NULL,
    at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_practice_attempts_user_day ON practice_attempts(user_id, day);
`

// DB is the subset of *pgxpool.Pool used by [Recorder]. *pgx.Conn also
// satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Recorder writes practice events to PostgreSQL.
type Recorder struct {
	db   DB
	pool *pgxpool.Pool
}

var _ progress.Recorder = (*Recorder)(nil)

// New returns a Recorder over db. The caller applies [Schema] and owns db.
func New(db DB) *Recorder {
	return &Recorder{db: db}
}

// Open connects to dsn, verifies the connection and applies [Schema].
// Close releases the pool.
func Open(ctx context.Context, dsn string) (*Recorder, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("progress postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("progress postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("progress postgres: ping: %w", err)
	}
	r := &Recorder{db: pool, pool: pool}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Migrate applies [Schema].
func (r *Recorder) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("progress postgres: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. It is used as a readiness
// check.
func (r *Recorder) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("progress postgres: ping: %w", err)
	}
	return nil
}

// Close releases the pool opened by [Open]. It is a no-op for recorders
// built with [New].
func (r *Recorder) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

const (
	insertAttempt = `
		INSERT INTO practice_attempts (id, user_id, day, statement, status, word_accuracy, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertProgress = `
		INSERT INTO practice_progress (user_id, day, speak, pronunciation_score, last_statement)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (user_id, day) DO UPDATE SET
			speak               = practice_progress.speak + 1,
			pronunciation_score = GREATEST(practice_progress.pronunciation_score, EXCLUDED.pronunciation_score),
			last_statement      = GREATEST(practice_progress.last_statement, EXCLUDED.last_statement),
			updated_at          = now()`
)

// Record stores e as an attempt and folds it into the learner's daily row,
// in one transaction.
func (r *Recorder) Record(ctx context.Context, e progress.Event) (err error) {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("progress postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("progress postgres: rollback: %w", rerr))
			}
		}
	}()

	if _, err = tx.Exec(ctx, insertAttempt, e.ID, e.UserID, e.Day, e.Statement, e.Status, e.Accuracy, e.At); err != nil {
		return fmt.Errorf("progress postgres: insert attempt: %w", err)
	}
	if _, err = tx.Exec(ctx, upsertProgress, e.UserID, e.Day, int(math.Round(e.Accuracy)), e.Statement); err != nil {
		return fmt.Errorf("progress postgres: update progress: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("progress postgres: commit: %w", err)
	}
	return nil
}

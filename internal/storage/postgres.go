package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"nofomo/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createDecisionLogSQL = `CREATE TABLE IF NOT EXISTS decision_log (
        id            BIGSERIAL PRIMARY KEY,
        request_id    TEXT        NOT NULL,
        symbol        TEXT        NOT NULL,
        direction     TEXT        NOT NULL,
        action        TEXT        NOT NULL,
        impulse_score SMALLINT    NOT NULL,
        payload       JSONB       NOT NULL,
        created_at    TIMESTAMPTZ NOT NULL
    );`

	createDecisionLogSymbolIndexSQL = `CREATE INDEX IF NOT EXISTS decision_log_symbol_idx ON decision_log (symbol);`

	createDecisionLogCreatedAtIndexSQL = `CREATE INDEX IF NOT EXISTS decision_log_created_at_idx ON decision_log (created_at);`

	insertEntrySQL = `INSERT INTO decision_log (
        request_id,
        symbol,
        direction,
        action,
        impulse_score,
        payload,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	listRecentEntriesSQL = `SELECT payload::text
    FROM decision_log
    ORDER BY id DESC
    LIMIT $1;`

	// The upper bound is inclusive because the column rounds to microseconds;
	// Scan applies the exact bound to the decoded entry.
	scanEntriesSQL = `SELECT payload::text
    FROM decision_log
    WHERE created_at >= $1 AND created_at <= $2
    ORDER BY id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DecisionLogConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("decision_log.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore keeps the log in a shared PostgreSQL table, so several
// instances can write to one log. Order across instances follows commit order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pool into a store and ensures the table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	s := &PostgresStore{pool: pool}
	for _, stmt := range []string{createDecisionLogSQL, createDecisionLogSymbolIndexSQL, createDecisionLogCreatedAtIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure decision_log table: %w", err)
		}
	}
	return s, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Append inserts entry.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	_, execErr := pool.Exec(ctx, insertEntrySQL,
		entry.RequestID,
		entry.Symbol,
		string(entry.Direction),
		string(entry.Decision.Action),
		entry.Decision.ImpulseScore,
		string(payload),
		entry.CreatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert entry: %w", execErr)
	}
	return nil
}

// Read lists the most recent entries.
func (s *PostgresStore) Read(ctx context.Context, limit int) ([]Entry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	rows, queryErr := pool.Query(ctx, listRecentEntriesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent entries: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// Scan streams entries created in [from, to).
func (s *PostgresStore) Scan(ctx context.Context, from, to time.Time, fn func(Entry) error) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	rows, queryErr := pool.Query(ctx, scanEntriesSQL, from, to)
	if queryErr != nil {
		return fmt.Errorf("scan entries: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			continue
		}
		if !InRange(entry.CreatedAt, from, to) {
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

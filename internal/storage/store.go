package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nofomo/internal/config"
)

// Read limits.
const (
	MinReadLimit     = 1
	MaxReadLimit     = 500
	DefaultReadLimit = 50
)

var (
	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("decision log closed")
	// ErrUnknownDriver is returned by Open for an unsupported driver.
	ErrUnknownDriver = errors.New("unknown decision log driver")
)

// DecisionLog is an append-only, durable record of decisions.
//
// Append persists one entry; a failed Append leaves no partial entry visible
// to Read. Read returns up to limit entries, most recent first. Scan calls fn
// for every entry created in [from, to), in no particular order, and stops
// at the first error fn returns.
// Implementations are safe for concurrent use.
type DecisionLog interface {
	Append(ctx context.Context, entry Entry) error
	Read(ctx context.Context, limit int) ([]Entry, error)
	Scan(ctx context.Context, from, to time.Time, fn func(Entry) error) error
	Close() error
}

// InRange reports whether at falls in the half-open range [from, to).
func InRange(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

// ClampLimit forces limit into [MinReadLimit, MaxReadLimit].
func ClampLimit(limit int) int {
	if limit < MinReadLimit {
		return MinReadLimit
	}
	if limit > MaxReadLimit {
		return MaxReadLimit
	}
	return limit
}

// Open initialises the configured backend, creating its file, directory or
// table when missing. Opening an existing log never alters its entries.
func Open(ctx context.Context, cfg config.DecisionLogConfig) (DecisionLog, error) {
	switch cfg.Driver {
	case config.DriverJSONL, "":
		return OpenJSONL(cfg.ResolvePath(), cfg.SyncWrites)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.ResolvePath())
	case config.DriverWAL:
		return OpenWAL(cfg.ResolvePath(), cfg.SyncWrites)
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

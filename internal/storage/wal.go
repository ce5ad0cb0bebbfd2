package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vadiminshakov/gowal"
)

const (
	walPrefix           = "decision_"
	walKeyPrefix        = "decision_"
	walSegmentThreshold = 1000
	walMaxSegments      = 100000

	// walScanSlack bounds how far out of time order appends may land. Scan
	// stops once it walks past an entry this much older than its range.
	walScanSlack = time.Minute
)

// WALStore appends entries to a segmented write-ahead log. Each entry gets
// the next log index, so index order is append order.
type WALStore struct {
	mu  sync.RWMutex
	wal *gowal.Wal
}

// OpenWAL opens or creates the log under dir.
func OpenWAL(dir string, syncWrites bool) (*WALStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("decision log path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create decision wal dir: %w", err)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           walPrefix,
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: syncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("init decision wal: %w", err)
	}
	return &WALStore{wal: wal}, nil
}

// Append writes entry at the next index.
func (s *WALStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wal == nil {
		return ErrClosed
	}
	next := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(next, walKeyPrefix+entry.Symbol, payload); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

// Read walks back from the newest index.
func (s *WALStore) Read(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wal == nil {
		return nil, ErrClosed
	}

	entries := make([]Entry, 0, limit)
	for idx := s.wal.CurrentIndex(); idx > 0 && len(entries) < limit; idx-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, payload, _ := s.wal.Get(idx)
		if len(payload) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Scan walks back from the newest index.
func (s *WALStore) Scan(ctx context.Context, from, to time.Time, fn func(Entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wal == nil {
		return ErrClosed
	}

	stop := from.Add(-walScanSlack)
	for idx := s.wal.CurrentIndex(); idx > 0; idx-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, payload, _ := s.wal.Get(idx)
		if len(payload) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			continue
		}
		if entry.CreatedAt.Before(stop) {
			return nil
		}
		if !InRange(entry.CreatedAt, from, to) {
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the log. It is safe to call more than once.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wal == nil {
		return nil
	}
	err := s.wal.Close()
	s.wal = nil
	return err
}

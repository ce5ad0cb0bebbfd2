package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nofomo/internal/config"
	"nofomo/internal/engine"
)

type opener func(t *testing.T) (open func() DecisionLog)

func backends() map[string]opener {
	return map[string]opener{
		config.DriverJSONL: func(t *testing.T) func() DecisionLog {
			path := filepath.Join(t.TempDir(), "nested", "log.jsonl")
			return func() DecisionLog {
				s, err := OpenJSONL(path, true)
				require.NoError(t, err)
				return s
			}
		},
		config.DriverSQLite: func(t *testing.T) func() DecisionLog {
			path := filepath.Join(t.TempDir(), "log.db")
			return func() DecisionLog {
				s, err := OpenSQLite(context.Background(), path)
				require.NoError(t, err)
				return s
			}
		},
		config.DriverWAL: func(t *testing.T) func() DecisionLog {
			dir := filepath.Join(t.TempDir(), "wal")
			return func() DecisionLog {
				s, err := OpenWAL(dir, true)
				require.NoError(t, err)
				return s
			}
		},
		config.DriverPostgres: func(t *testing.T) func() DecisionLog {
			dsn := os.Getenv("NOFOMO_TEST_POSTGRES_DSN")
			if dsn == "" {
				t.Skip("NOFOMO_TEST_POSTGRES_DSN not set")
			}
			ctx := context.Background()
			pool, err := NewPool(ctx, config.DecisionLogConfig{DSN: dsn})
			require.NoError(t, err)
			_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS decision_log`)
			require.NoError(t, err)
			pool.Close()
			return func() DecisionLog {
				s, err := Open(ctx, config.DecisionLogConfig{Driver: config.DriverPostgres, DSN: dsn})
				require.NoError(t, err)
				return s
			}
		},
	}
}

func sampleEntry(i int) Entry {
	fgi := 40 + i
	action := engine.ActionAllow
	if i%3 == 0 {
		action = engine.ActionWarn
	}
	return Entry{
		RequestID: fmt.Sprintf("req-%03d", i),
		Symbol:    "BTCUSDT",
		Direction: engine.DirectionLong,
		Decision: engine.Decision{
			Action:         action,
			ImpulseScore:   i % 101,
			Confidence:     70,
			CoolingSeconds: 0,
			Reasons:        []string{engine.StableReason},
		},
		MarketData: MarketData{Price: "64000.5", Change24h: "2.1", FearGreedIndex: &fgi},
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, i*1000, time.UTC),
	}
}

func assertSameEntry(t *testing.T, want, got Entry) {
	t.Helper()
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt %s != %s", want.CreatedAt, got.CreatedAt)
	got.CreatedAt = want.CreatedAt
	assert.Equal(t, want, got)
}

func TestDecisionLogContract(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			open := mk(t)
			ctx := context.Background()

			store := open()
			entries, err := store.Read(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, entries)

			for i := 1; i <= 5; i++ {
				require.NoError(t, store.Append(ctx, sampleEntry(i)))
			}

			entries, err = store.Read(ctx, 3)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assertSameEntry(t, sampleEntry(5), entries[0])
			assertSameEntry(t, sampleEntry(4), entries[1])
			assertSameEntry(t, sampleEntry(3), entries[2])

			entries, err = store.Read(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "limit below range is clamped to 1")

			require.NoError(t, store.Close())

			reopened := open()
			defer reopened.Close()
			entries, err = reopened.Read(ctx, 50)
			require.NoError(t, err)
			require.Len(t, entries, 5, "reopen must keep existing entries")
			assertSameEntry(t, sampleEntry(1), entries[4])

			require.NoError(t, reopened.Append(ctx, sampleEntry(6)))
			entries, err = reopened.Read(ctx, 1)
			require.NoError(t, err)
			assertSameEntry(t, sampleEntry(6), entries[0])
		})
	}
}

func TestDecisionLogConcurrentAppends(t *testing.T) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			store := mk(t)()
			defer store.Close()
			ctx := context.Background()

			const writers, perWriter = 8, 10
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						assert.NoError(t, store.Append(ctx, sampleEntry(w*perWriter+i)))
					}
				}(w)
			}
			wg.Wait()

			entries, err := store.Read(ctx, MaxReadLimit)
			require.NoError(t, err)
			require.Len(t, entries, writers*perWriter)
			seen := make(map[string]bool, len(entries))
			for _, e := range entries {
				assert.False(t, seen[e.RequestID], "duplicate %s", e.RequestID)
				seen[e.RequestID] = true
			}
		})
	}
}

func TestDecisionLogScanCoversWholeRange(t *testing.T) {
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			store := mk(t)()
			defer store.Close()
			ctx := context.Background()

			const total = MaxReadLimit + 300
			for i := 0; i < total; i++ {
				e := sampleEntry(i)
				e.CreatedAt = base.Add(time.Duration(i) * time.Second)
				require.NoError(t, store.Append(ctx, e))
			}

			from := base.Add(100 * time.Second)
			to := base.Add(700 * time.Second)
			seen := make(map[string]bool)
			err := store.Scan(ctx, from, to, func(e Entry) error {
				assert.True(t, InRange(e.CreatedAt, from, to), "%s outside range", e.CreatedAt)
				seen[e.RequestID] = true
				return nil
			})
			require.NoError(t, err)
			assert.Len(t, seen, 600, "every entry in range beyond the read cap")
			assert.True(t, seen["req-100"], "lower bound is inclusive")
			assert.False(t, seen["req-700"], "upper bound is exclusive")

			stop := errors.New("stop")
			calls := 0
			err = store.Scan(ctx, from, to, func(Entry) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)

			err = store.Scan(ctx, base.Add(-time.Hour), base, func(Entry) error {
				t.Fatal("no entry precedes the log")
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestReadLimitIsCappedAtMax(t *testing.T) {
	store, err := OpenJSONL(filepath.Join(t.TempDir(), "log.jsonl"), false)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < MaxReadLimit+20; i++ {
		require.NoError(t, store.Append(ctx, sampleEntry(i)))
	}
	entries, err := store.Read(ctx, 10_000)
	require.NoError(t, err)
	assert.Len(t, entries, MaxReadLimit)
	assert.Equal(t, sampleEntry(MaxReadLimit+19).RequestID, entries[0].RequestID)
}

func TestJSONLSkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	store, err := OpenJSONL(path, false)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, sampleEntry(1)))
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"requestId":"torn","symbol":"ETH`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	store, err = OpenJSONL(path, false)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Append(ctx, sampleEntry(2)))

	entries, err := store.Read(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-002", entries[0].RequestID)
	assert.Equal(t, "req-001", entries[1].RequestID)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store, err := OpenJSONL(filepath.Join(t.TempDir(), "log.jsonl"), false)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Append(context.Background(), sampleEntry(1)), ErrClosed)
	_, err = store.Read(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
	err = store.Scan(context.Background(), time.Time{}, time.Now(), func(Entry) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, config.DecisionLogConfig{Driver: config.DriverJSONL, Path: filepath.Join(dir, "a.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, config.DecisionLogConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.DecisionLogConfig{Driver: "mongo"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 42, ClampLimit(42))
	assert.Equal(t, 500, ClampLimit(501))
}

func TestMarketDataKeepsSuppliedValues(t *testing.T) {
	snap := engine.MarketSnapshot{
		Price:          engine.NumberFrom("64000.50"),
		Change24h:      engine.NumberFrom("12.5%"),
		FearGreedIndex: engine.NumberOf(80.4),
	}
	md := NewMarketData(snap)
	assert.Equal(t, "64000.50", md.Price)
	assert.Equal(t, "12.5%", md.Change24h)
	require.NotNil(t, md.FearGreedIndex)
	assert.Equal(t, 80, *md.FearGreedIndex)

	back := md.Snapshot()
	change, ok := back.Change24h.Float()
	assert.True(t, ok)
	assert.InDelta(t, 12.5, change, 1e-9)
	fgi, ok := back.FearGreed()
	assert.True(t, ok)
	assert.Equal(t, 80, fgi)

	empty := NewMarketData(engine.MarketSnapshot{})
	assert.Nil(t, empty.FearGreedIndex)
	assert.False(t, empty.Snapshot().Change24h.IsSet())
}

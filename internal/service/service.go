package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nofomo/internal/alerting"
	"nofomo/internal/engine"
	"nofomo/internal/storage"
)

// ErrClosed is returned once the service has been shut down.
var ErrClosed = errors.New("service closed")

// Enricher fills missing snapshot fields before scoring.
type Enricher interface {
	Enrich(ctx context.Context, symbol string, snap engine.MarketSnapshot) engine.MarketSnapshot
}

// Options tune the decision service.
type Options struct {
	QueueSize     int
	AppendTimeout time.Duration
	FlushTimeout  time.Duration
	NotifyTimeout time.Duration
	AlertActions  map[engine.Action]bool
}

// DecideRequest is a raw trade intent as received from a client.
type DecideRequest struct {
	RequestID string
	Symbol    string
	Direction string
	Snapshot  engine.MarketSnapshot
}

// Stats reports the background writer counters.
type Stats struct {
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

type job struct {
	entry *storage.Entry
	done  chan struct{}
}

// Service scores trade intents and records every decision.
//
// Entries are handed to one writer goroutine through a bounded queue, so
// append order matches decision order and callers never wait on storage.
type Service struct {
	engine   *engine.Engine
	store    storage.DecisionLog
	notifier alerting.Notifier
	enricher Enricher
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	closed  bool
	queue   chan job
	writerD chan struct{}
	notifWG sync.WaitGroup

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// New constructs the decision service and starts its writer. notifier and
// enricher may be nil.
func New(eng *engine.Engine, store storage.DecisionLog, notifier alerting.Notifier, enricher Enricher, opts Options, logger zerolog.Logger) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.AppendTimeout <= 0 {
		opts.AppendTimeout = 5 * time.Second
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 500 * time.Millisecond
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}

	s := &Service{
		engine:   eng,
		store:    store,
		notifier: notifier,
		enricher: enricher,
		opts:     opts,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
		queue:    make(chan job, opts.QueueSize),
		writerD:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Decide validates and scores a trade intent, then schedules the log append.
// Only validation errors are returned; storage trouble never reaches the caller.
func (s *Service) Decide(ctx context.Context, req DecideRequest) (engine.Decision, error) {
	intent, err := engine.NewTradeIntent(req.Symbol, req.Direction, req.Snapshot)
	if err != nil {
		return engine.Decision{}, err
	}
	if s.enricher != nil {
		intent.Snapshot = s.enricher.Enrich(ctx, intent.Symbol, intent.Snapshot)
	}

	decision := s.engine.Evaluate(intent)

	entry := storage.Entry{
		RequestID:  req.RequestID,
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		Decision:   decision,
		MarketData: storage.NewMarketData(intent.Snapshot),
	}
	entry = s.record(entry)

	s.logger.Info().
		Str("request_id", req.RequestID).
		Str("symbol", intent.Symbol).
		Str("direction", string(intent.Direction)).
		Str("action", string(decision.Action)).
		Int("impulse_score", decision.ImpulseScore).
		Int("confidence", decision.Confidence).
		Msg("decision issued")

	s.alert(entry)
	return decision, nil
}

// record stamps entry and enqueues it. Stamping and enqueueing happen under
// one lock so createdAt never decreases along the log.
func (s *Service) record(entry storage.Entry) storage.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.CreatedAt = s.stamp()
	if s.closed {
		s.dropped.Add(1)
		s.logger.Error().Str("request_id", entry.RequestID).Msg("service closed; decision not logged")
		return entry
	}

	e := entry
	select {
	case s.queue <- job{entry: &e}:
	default:
		s.dropped.Add(1)
		s.logger.Error().Str("request_id", entry.RequestID).Int("queue_size", s.opts.QueueSize).Msg("decision log queue full; entry dropped")
	}
	return entry
}

func (s *Service) stamp() time.Time {
	t := s.now().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func (s *Service) writeLoop() {
	defer close(s.writerD)
	for j := range s.queue {
		if j.entry != nil {
			s.append(*j.entry)
		}
		if j.done != nil {
			close(j.done)
		}
	}
}

func (s *Service) append(entry storage.Entry) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.AppendTimeout)
	defer cancel()
	if err := s.store.Append(ctx, entry); err != nil {
		s.failed.Add(1)
		s.logger.Error().Err(err).Str("request_id", entry.RequestID).Str("symbol", entry.Symbol).Msg("failed to append decision")
		return
	}
	s.written.Add(1)
}

// Flush waits until every entry queued before the call has been handled, or
// until ctx is done.
func (s *Service) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	select {
	case s.queue <- job{done: done}:
	default:
		s.mu.Unlock()
		return fmt.Errorf("decision log queue full")
	}
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListDecisions returns the most recent entries. It first gives pending
// appends a short grace period so a caller sees its own decisions.
func (s *Service) ListDecisions(ctx context.Context, limit int) ([]storage.Entry, error) {
	if s.store == nil {
		return nil, storage.ErrNotConfigured
	}
	s.flushBeforeRead(ctx)

	entries, err := s.store.Read(ctx, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("read decision log: %w", err)
	}
	return entries, nil
}

// ScanDecisions flushes pending writes, then visits every logged entry
// created in [from, to).
func (s *Service) ScanDecisions(ctx context.Context, from, to time.Time, fn func(storage.Entry) error) error {
	if s.store == nil {
		return storage.ErrNotConfigured
	}
	s.flushBeforeRead(ctx)
	if err := s.store.Scan(ctx, from, to, fn); err != nil {
		return fmt.Errorf("scan decision log: %w", err)
	}
	return nil
}

func (s *Service) flushBeforeRead(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, s.opts.FlushTimeout)
	defer cancel()
	if err := s.Flush(flushCtx); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Debug().Err(err).Msg("reading decision log without flush")
	}
}

func (s *Service) alert(entry storage.Entry) {
	if s.notifier == nil || !s.opts.AlertActions[entry.Decision.Action] {
		return
	}
	note := alerting.Notification{
		Kind: alerting.KindDecision,
		Decision: &alerting.DecisionAlert{
			RequestID:      entry.RequestID,
			Symbol:         entry.Symbol,
			Direction:      entry.Direction,
			Decision:       entry.Decision,
			Change24h:      entry.MarketData.Change24h,
			FearGreedIndex: entry.MarketData.FearGreedIndex,
			CreatedAt:      entry.CreatedAt,
		},
	}

	s.notifWG.Add(1)
	go func() {
		defer s.notifWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.NotifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, note); err != nil {
			if errors.Is(err, alerting.ErrSuppressed) {
				s.logger.Debug().Str("key", note.Key()).Msg("alert suppressed by cooldown")
				return
			}
			s.logger.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to dispatch alert")
		}
	}()
}

// Stats returns a snapshot of the writer counters.
func (s *Service) Stats() Stats {
	return Stats{
		Queued:  len(s.queue),
		Written: s.written.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Close stops accepting entries and drains the queue. The store itself is
// owned by the caller and must be closed after Close returns.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		<-s.writerD
		s.notifWG.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info().Int64("written", s.written.Load()).Int64("dropped", s.dropped.Load()).Msg("decision writer drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain decision log: %w", ctx.Err())
	}
}

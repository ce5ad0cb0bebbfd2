package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"nofomo/internal/alerting"
	"nofomo/internal/engine"
	"nofomo/internal/scheduler"
	"nofomo/internal/storage"
)

// DigestOptions configure the periodic summary.
type DigestOptions struct {
	TopSymbols int
	// LockKey enables a postgres advisory lock so only one instance sends each digest.
	LockKey int64
}

// Digester summarises the decision log on a schedule.
type Digester struct {
	svc      *Service
	notifier alerting.Notifier
	opts     DigestOptions
	locker   storage.AdvisoryLocker
}

// NewDigester builds a digester on top of svc.
func NewDigester(svc *Service, notifier alerting.Notifier, opts DigestOptions) *Digester {
	var locker storage.AdvisoryLocker
	if l, ok := svc.store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	if opts.TopSymbols <= 0 {
		opts.TopSymbols = 3
	}
	return &Digester{svc: svc, notifier: notifier, opts: opts, locker: locker}
}

// Run drives the digest until ctx is cancelled.
func (d *Digester) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, d.Send)
}

// Send builds and delivers the digest for one window.
func (d *Digester) Send(ctx context.Context, window scheduler.Window) error {
	unlock, proceed, err := d.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		d.svc.logger.Debug().Time("to", window.To).Msg("skip digest because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	builder := newDigestBuilder(window)
	err = d.svc.ScanDecisions(ctx, window.From, window.To, func(e storage.Entry) error {
		builder.add(e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load decisions for digest: %w", err)
	}
	digest := builder.build(d.opts.TopSymbols)

	if d.notifier == nil {
		return nil
	}
	if err := d.notifier.Notify(ctx, alerting.Notification{Kind: alerting.KindDigest, Digest: &digest}); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

func (d *Digester) acquireLock(ctx context.Context) (func(), bool, error) {
	if d.opts.LockKey == 0 || d.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := d.locker.TryAdvisoryLock(ctx, d.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// BuildDigest counts the entries created inside window.
func BuildDigest(entries []storage.Entry, window scheduler.Window, top int) alerting.Digest {
	b := newDigestBuilder(window)
	for _, e := range entries {
		b.add(e)
	}
	return b.build(top)
}

// digestBuilder folds entries one at a time.
type digestBuilder struct {
	window    scheduler.Window
	total     int
	sum       int64
	actions   map[engine.Action]int
	perSymbol map[string]int
}

func newDigestBuilder(window scheduler.Window) *digestBuilder {
	return &digestBuilder{
		window:    window,
		actions:   make(map[engine.Action]int),
		perSymbol: make(map[string]int),
	}
}

func (b *digestBuilder) add(e storage.Entry) {
	if !storage.InRange(e.CreatedAt, b.window.From, b.window.To) {
		return
	}
	b.total++
	b.actions[e.Decision.Action]++
	b.perSymbol[e.Symbol]++
	b.sum += int64(e.Decision.ImpulseScore)
}

func (b *digestBuilder) build(top int) alerting.Digest {
	digest := alerting.Digest{
		From:     b.window.From,
		To:       b.window.To,
		Total:    b.total,
		Actions:  b.actions,
		AvgScore: decimal.Zero,
	}
	if b.total == 0 {
		return digest
	}
	digest.AvgScore = decimal.NewFromInt(b.sum).Div(decimal.NewFromInt(int64(b.total)))

	for symbol, count := range b.perSymbol {
		digest.TopSymbols = append(digest.TopSymbols, alerting.SymbolCount{Symbol: symbol, Count: count})
	}
	sort.Slice(digest.TopSymbols, func(i, j int) bool {
		x, y := digest.TopSymbols[i], digest.TopSymbols[j]
		if x.Count != y.Count {
			return x.Count > y.Count
		}
		return x.Symbol < y.Symbol
	})
	if top > 0 && len(digest.TopSymbols) > top {
		digest.TopSymbols = digest.TopSymbols[:top]
	}
	return digest
}

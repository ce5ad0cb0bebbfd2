package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nofomo/internal/alerting"
	"nofomo/internal/api"
	"nofomo/internal/config"
	"nofomo/internal/engine"
	"nofomo/internal/fetcher"
	"nofomo/internal/scheduler"
	"nofomo/internal/service"
	"nofomo/internal/storage"
	"nofomo/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output such as tables and JSON documents.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) newEngine() (*engine.Engine, error) {
	return engine.New(a.Config.Engine)
}

func (a *App) openStore(ctx context.Context) (storage.DecisionLog, error) {
	store, err := storage.Open(ctx, a.Config.DecisionLog)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	return store, nil
}

func (a *App) closeStore(store storage.DecisionLog) {
	if err := store.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("close decision log")
	}
}

// newChannel returns the configured delivery channel, or nil when none is enabled.
func (a *App) newChannel() alerting.Notifier {
	tg := a.Config.Alerting.Telegram
	if tg.Enabled {
		return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

// newDecisionNotifier returns the throttled notifier for decision alerts.
func (a *App) newDecisionNotifier(channel alerting.Notifier) alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if channel == nil {
		a.Logger.Warn().Msg("alerting enabled without a channel; alerts go to the log")
		channel = alerting.NewLogNotifier(a.Logger)
	}
	return alerting.NewThrottle(channel, a.Config.Alerting.Cooldown)
}

// newEnricher returns nil when enrichment is off so the service skips it entirely.
func (a *App) newEnricher() service.Enricher {
	cfg := a.Config.Enrichment
	if !cfg.Enabled {
		return nil
	}
	ticker := fetcher.NewBinanceTicker(fetcher.BinanceOptions{
		BaseURL:    cfg.BinanceBaseURL,
		QuoteAsset: cfg.QuoteAsset,
		Timeout:    cfg.RequestTimeout,
	}, a.Logger)
	fearGreed := fetcher.NewFearGreed(fetcher.FearGreedOptions{
		URL:       cfg.FearGreedURL,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		CacheTTL:  10 * time.Minute,
	}, a.Logger)
	return fetcher.NewEnricher(ticker, fearGreed, cfg.RequestTimeout, a.Logger)
}

func (a *App) serviceOptions() service.Options {
	return service.Options{
		QueueSize:    a.Config.DecisionLog.QueueSize,
		AlertActions: a.Config.Alerting.AlertActions(),
	}
}

func (a *App) shutdownService(svc *service.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("decision writer did not drain")
	}
}

// Serve runs the HTTP API and, when enabled, the digest scheduler until a
// signal arrives or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := a.newEngine()
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer a.closeStore(store)

	channel := a.newChannel()
	svc := service.New(eng, store, a.newDecisionNotifier(channel), a.newEnricher(), a.serviceOptions(), a.Logger)
	defer a.shutdownService(svc)

	srvCfg := a.Config.Server
	server := api.NewServer(api.Options{
		Addr:            srvCfg.Addr,
		ReadTimeout:     srvCfg.ReadTimeout,
		WriteTimeout:    srvCfg.WriteTimeout,
		ShutdownTimeout: srvCfg.ShutdownTimeout,
		MaxBodyBytes:    srvCfg.MaxBodyBytes,
		CORSOrigins:     srvCfg.CORSOrigins,
		RateLimit:       srvCfg.RateLimit,
		RateBurst:       srvCfg.RateBurst,
	}, svc, a.Logger)

	// Fallible setup finishes before the listener goroutine starts.
	var (
		sched    *scheduler.Scheduler
		digester *service.Digester
	)
	if a.Config.Digest.Enabled {
		sched, err = scheduler.New(scheduler.Options{
			Name:         "digest",
			Interval:     a.Config.Digest.Interval,
			AlignToStart: a.Config.Digest.AlignToBucket,
			StartupDelay: a.Config.Digest.StartupDelay,
		}, a.Logger)
		if err != nil {
			return err
		}
		if channel == nil {
			channel = alerting.NewLogNotifier(a.Logger)
		}
		digester = service.NewDigester(svc, channel, service.DigestOptions{
			TopSymbols: a.Config.Digest.TopSymbols,
			LockKey:    a.Config.Digest.AdvisoryLockKey,
		})
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(gctx)
	})
	if digester != nil {
		group.Go(func() error {
			if err := digester.Run(gctx, sched); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	info := version.Current()
	a.Logger.Info().
		Str("version", info.Version).
		Str("driver", a.Config.DecisionLog.Driver).
		Bool("enrichment", a.Config.Enrichment.Enabled).
		Bool("alerting", a.Config.Alerting.Enabled).
		Bool("digest", a.Config.Digest.Enabled).
		Msg("starting decision service")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("decision service stopped")
	return nil
}

// ExportOptions hold parameters for exporting logged decisions.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	Limit   int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	JSON  bool
}

// EvaluateOptions describe a trade intent given on the command line.
// Numeric fields stay textual so malformed values degrade like they do over HTTP.
type EvaluateOptions struct {
	Symbol              string
	Direction           string
	Price               string
	Change24h           string
	FearGreedIndex      string
	Sentiment           string
	SentimentConfidence string
	Record              bool
}

// ReplayOptions configure the replay command.
type ReplayOptions struct {
	Limit       int
	ChangedOnly bool
	JSON        bool
}

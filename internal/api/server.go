// Package api exposes the decision service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nofomo/internal/engine"
	"nofomo/internal/service"
	"nofomo/internal/storage"
)

// DecisionService is what the HTTP layer needs from the service.
type DecisionService interface {
	Decide(ctx context.Context, req service.DecideRequest) (engine.Decision, error)
	ListDecisions(ctx context.Context, limit int) ([]storage.Entry, error)
	Stats() service.Stats
}

// Options configure the HTTP boundary.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string
	RateLimit       float64
	RateBurst       int
}

// Server serves the decision API.
type Server struct {
	opts   Options
	router *gin.Engine
	svc    DecisionService
	logger zerolog.Logger
}

// NewServer builds the router and registers every route.
func NewServer(opts Options, svc DecisionService, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{
		opts:   opts,
		router: router,
		svc:    svc,
		logger: logger.With().Str("component", "http").Logger(),
	}

	router.Use(
		gin.CustomRecovery(s.recover),
		requestID(),
		requestLogger(s.logger),
		cors(opts.CORSOrigins),
	)
	if opts.RateLimit > 0 {
		router.Use(newRateLimiter(opts.RateLimit, opts.RateBurst).middleware())
	}

	router.GET("/healthz", s.handleHealth)
	router.POST("/decision", s.handleDecision)
	router.GET("/decision-log", s.handleDecisionLog)
	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "route not found", "")
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Error().Err(err).Msg("http shutdown incomplete")
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) recover(c *gin.Context, rec any) {
	s.logger.Error().Interface("panic", rec).Str("request_id", RequestIDFrom(c)).Msg("handler panicked")
	abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal error", "")
}

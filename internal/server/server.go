// Package server assembles the stores, ledger clients and HTTP API from
// configuration and runs the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sitewarden/sitewarden/internal/api"
	"github.com/sitewarden/sitewarden/internal/auth"
	"github.com/sitewarden/sitewarden/internal/chain"
	"github.com/sitewarden/sitewarden/internal/classifier"
	"github.com/sitewarden/sitewarden/internal/config"
	"github.com/sitewarden/sitewarden/internal/dismissed"
	"github.com/sitewarden/sitewarden/internal/market"
	"github.com/sitewarden/sitewarden/internal/metrics"
	"github.com/sitewarden/sitewarden/internal/report"
)

type Server struct {
	httpServer *http.Server
	httpLn     net.Listener

	dismissed *dismissed.Store
	market    *market.Store

	shutdownTimeout time.Duration
	logger          *slog.Logger
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	dstore, err := dismissed.Open(filepath.Join(cfg.Store.Dir, "dismissed.db"))
	if err != nil {
		return nil, fmt.Errorf("open dismissed store: %w", err)
	}
	mstore, err := market.Open(filepath.Join(cfg.Store.Dir, "market.db"))
	if err != nil {
		_ = dstore.Close()
		return nil, fmt.Errorf("open market store: %w", err)
	}

	cls, err := classifier.New(cfg.Classifier.URL, cfg.Classifier.Timeout, logger.With("component", "classifier"))
	if err != nil {
		_ = dstore.Close()
		_ = mstore.Close()
		return nil, err
	}

	gateway, err := chain.NewGateway(cfg.Chain.GatewayURL, cfg.Chain.Timeout, logger.With("component", "chain"))
	if err != nil {
		_ = dstore.Close()
		_ = mstore.Close()
		return nil, err
	}
	store, err := chain.NewReportStore(gateway, cfg.Chain.ReportContract)
	if err != nil {
		_ = dstore.Close()
		_ = mstore.Close()
		return nil, err
	}
	rewards, err := chain.NewRewards(gateway, cfg.Chain.RewardsContract, cfg.Chain.ReportContract)
	if err != nil {
		_ = dstore.Close()
		_ = mstore.Close()
		return nil, err
	}

	verifier, err := auth.NewVerifier(cfg.Auth.TokenSecret, cfg.Auth.AdminWallets)
	if err != nil {
		_ = dstore.Close()
		_ = mstore.Close()
		return nil, err
	}

	collector := metrics.New()
	svc := report.NewService(cls, store, rewards, dstore, collector, logger.With("component", "report"))
	app := api.NewApp(svc, dstore, mstore, verifier, collector, logger.With("component", "api"))

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = dstore.Close()
		_ = mstore.Close()
		return nil, fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	httpServer := &http.Server{
		Handler:      app.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		httpServer:      httpServer,
		httpLn:          ln,
		dismissed:       dstore,
		market:          mstore,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("server listening", "addr", s.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}

func (s *Server) Close() error {
	if s.httpLn != nil {
		_ = s.httpLn.Close()
		s.httpLn = nil
	}
	if s.dismissed != nil {
		_ = s.dismissed.Close()
		s.dismissed = nil
	}
	if s.market != nil {
		_ = s.market.Close()
		s.market = nil
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}

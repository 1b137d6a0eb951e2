package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/clickconstruction/pipetooling/internal/config"
	"github.com/clickconstruction/pipetooling/internal/handler"
	"github.com/clickconstruction/pipetooling/internal/logging"
	"github.com/clickconstruction/pipetooling/internal/metrics"
	"github.com/clickconstruction/pipetooling/internal/store"
	"github.com/clickconstruction/pipetooling/internal/store/memory"
	"github.com/clickconstruction/pipetooling/internal/store/sqlite"
	"github.com/clickconstruction/pipetooling/internal/takeoff"
	"github.com/clickconstruction/pipetooling/pkg/auth"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	orchestrator := takeoff.New(st,
		takeoff.WithLogger(logger),
		takeoff.WithMetrics(metrics.NewRecorder(reg)),
		takeoff.WithMaxDepth(cfg.MaxDepth),
		takeoff.WithAtomicWrites(cfg.AtomicWrites),
		takeoff.WithNameLayout(cfg.NameLayout),
	)

	if cfg.AuthSecret == "" {
		logger.Warn("AUTH_SECRET is empty; every protected request will be rejected")
	}
	authProvider := auth.NewJWT(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience)
	appRouter := handler.NewRouter(authProvider, st, orchestrator, reg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Mount("/", appRouter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("atomic_writes", cfg.AtomicWrites))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (handler.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	default:
		s, err := store.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

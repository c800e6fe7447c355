package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"altivio-backend/internal/ai"
	"altivio-backend/internal/api"
	"altivio-backend/internal/auth"
	"altivio-backend/internal/confidence"
	"altivio-backend/internal/config"
	"altivio-backend/internal/db"
	"altivio-backend/internal/insights"
	"altivio-backend/internal/logging"
	"altivio-backend/internal/notifications"
	"altivio-backend/internal/notify"
	"altivio-backend/internal/recommendations"
	"altivio-backend/internal/scheduler"
	"altivio-backend/internal/store"
	"altivio-backend/internal/store/memory"
	"altivio-backend/internal/store/sqlstore"
	"altivio-backend/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = []byte(uuid.NewString())
		logger.Warn("JWT_SECRET not set, using a random secret for this process")
	}
	mw := auth.New(secret)

	scorer := confidence.NewService(st, confidence.WithLogger(logger))
	recs := recommendations.NewService(st, scorer, loc, logger)

	var gen ai.Generator
	if cfg.GeminiAPIKey != "" {
		gen = ai.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.AITimeout)
	}
	llm := ai.NewService(gen, st, logger)
	if !llm.IsAvailable() {
		logger.Info("GEMINI_API_KEY not set, AI enrichment disabled")
	}

	hub := notify.NewHub(mw.UserID, cfg.CORSAllowedOrigins, logger)
	defer hub.Close()
	notifier := notify.NewNotifier(st, hub, logger)

	runner, err := newScheduler(ctx, cfg, loc, logger, scheduler.Deps{
		Store:       st,
		Scorer:      scorer,
		Recommender: recs,
		Enricher:    llm,
		Notifier:    notifier,
		AITimeout:   cfg.AITimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if cfg.SchedulerEnabled {
		runner.Start()
	}

	router := api.NewRouter(api.Deps{
		Auth:          mw,
		Notifications: notifications.NewHandler(st, scorer, recs, notifier, logger),
		Tasks:         tasks.NewHandler(st, scorer, notifier, logger),
		Insights:      insights.NewHandler(st, scorer, recs, llm, cfg.AITimeout, logger),
		WebSocket:     hub.ServeWS,
		Logger:        logger,
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server is running", "addr", srv.Addr, "store", cfg.StoreDriver, "scheduler", cfg.SchedulerEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop in time", "err", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		driver  string
		dsn     string
		dialect sqlstore.Dialect
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	case config.StoreSQLite:
		driver, dsn, dialect = db.DriverSQLite, cfg.SQLitePath, sqlstore.SQLite
	default:
		driver, dsn, dialect = db.DriverPostgres, cfg.ConnString(), sqlstore.Postgres
	}

	database, err := db.Connect(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	st := sqlstore.New(database, dialect)
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate %s: %w", driver, err)
	}
	logger.Info("connected to store", "driver", driver)
	return st, nil
}

// newScheduler registers every job. The Redis lock is used only when
// REDIS_ADDR is set and reachable.
func newScheduler(ctx context.Context, cfg *config.Config, loc *time.Location, logger *slog.Logger, deps scheduler.Deps) (*scheduler.Runner, error) {
	var locker scheduler.Locker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, job lock disabled", "addr", cfg.RedisAddr, "err", err)
			client.Close()
		} else {
			locker = scheduler.NewRedisLocker(client)
		}
	}

	runner := scheduler.NewRunner(loc, locker, logger)
	for _, job := range scheduler.NewJobs(deps).All() {
		if err := runner.Add(job); err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}
	return runner, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/domain"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/jobs"
	"server/internal/notify"
	"server/internal/providers/fal"
	"server/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Job store: Postgres when DATABASE_URL is set, in-memory otherwise.
	var store domain.JobRepository
	if cfg.DatabaseURL != "" {
		if err := infra.RunMigrations(cfg.DatabaseURL, migrations.FS); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		store = repo.NewJobRepository(dbpool)
		logger.Info().Msg("using postgres job store")
	} else {
		store = repo.NewMemoryJobRepository()
		logger.Warn().Msg("DATABASE_URL not set, using in-memory job store")
	}

	// Change notifications: Redis pub/sub when REDIS_URL is set, else in-process.
	var bus notify.Bus
	if cfg.RedisURL != "" {
		redisBus, err := notify.NewRedisBus(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure redis bus")
		}
		if err := redisBus.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to reach redis")
		}
		defer redisBus.Close()
		bus = redisBus
		logger.Info().Msg("using redis notification bus")
	} else {
		bus = notify.NewMemoryBus()
		logger.Info().Msg("REDIS_URL not set, using in-process notification bus")
	}

	queue := fal.NewClient(fal.Options{
		BaseURL: cfg.FalBaseURL,
		APIKey:  cfg.FalKey,
		Model:   cfg.FalModel,
		Timeout: cfg.ProviderTimeout,
	})
	if !queue.Configured() {
		logger.Warn().Msg("FAL_KEY not configured, submissions return mock responses")
	}

	svc := jobs.NewService(jobs.ServiceOptions{
		Repo:       store,
		Bus:        bus,
		Queue:      queue,
		Logger:     logger,
		WebhookURL: cfg.WebhookURL,
		Configured: queue.Configured(),
	})

	app := handlers.NewApp(svc, logger, cfg.WaitTimeout)

	router := httpapi.NewRouter(app, logger, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clipcast/internal/api"
	"clipcast/internal/config"
	"clipcast/internal/database"
	"clipcast/internal/dispatch"
	"clipcast/internal/domain"
	"clipcast/internal/events"
	"clipcast/internal/export"
	"clipcast/internal/google"
	"clipcast/internal/limiter"
	"clipcast/internal/logging"
	"clipcast/internal/metrics"
	"clipcast/internal/models"
	"clipcast/internal/notify"
	"clipcast/internal/planner"
	"clipcast/internal/repository"
	"clipcast/internal/service"
	"clipcast/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, stateRepo := initStateRepository(ctx, cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()

	metrics.Register()
	startMonitoring(cfg, &logger)

	notifier, err := initNotifier(cfg, &logger)
	if err != nil {
		return err
	}

	if cfg.Dispatch.BaseURL == "" {
		logger.Error().Msg("dispatch.base_url is required")
		return os.ErrInvalid
	}
	dispatcher := dispatch.NewClient(cfg.Dispatch, &logger)

	eventBus := events.NewEventBus()
	pl := planner.New(cfg.Engine.Planner, db, dispatcher, &logger)
	lim := limiter.New(cfg.Engine.Limits, db, &logger).WithCounter(stateRepo)
	svc := service.NewPublishService(db, pl, stateRepo, eventBus, notifier, cfg.Engine, &logger)

	for i := 0; i < cfg.Engine.Queue.Workers; i++ {
		w := worker.NewPublishWorker(db, dispatcher, stateRepo, lim,
			cfg.Engine.Queue, cfg.Engine.Checkback.OffsetsHours, eventBus, notifier, &logger)
		go w.Start(ctx)
	}
	for i := 0; i < cfg.Engine.Checkback.Workers; i++ {
		w := worker.NewCheckbackWorker(db, dispatcher, cfg.Engine.Checkback, eventBus, notifier, &logger)
		go w.Start(ctx)
	}

	go svc.RunStarvationMonitor(ctx)
	go runQueueDepthGauge(ctx, db, &logger)
	go worker.NewClaimReaper(db, cfg.Engine.Queue, cfg.Engine.Checkback, &logger).Start(ctx)

	if cfg.Reports.Enabled {
		startReporter(ctx, cfg, db, &logger)
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, svc, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	logger.Info().
		Int("publish_workers", cfg.Engine.Queue.Workers).
		Int("checkback_workers", cfg.Engine.Checkback.Workers).
		Msg("engine running")
	<-ctx.Done()

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "engine-main").Logger()

	// Effective config with defaults applied, for debugging deployments.
	if dump, err := yaml.Marshal(cfg); err == nil {
		logger.Debug().Str("config", string(dump)).Msg("effective configuration")
	}

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create database directory")
		return err
	}
	if cfg.Reports.Enabled {
		if err := os.MkdirAll(cfg.Reports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("failed to create reports directory")
			return err
		}
	}
	return nil
}

func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StateRepository) {
	fallback := repository.NewMemoryStateRepository(0)
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-memory state repository")
		return nil, fallback
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisStateRepository(redisClient)
	return redisClient, repository.NewFailoverStateRepository(primary, fallback, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) (domain.Notifier, error) {
	if !cfg.Notify.Enabled {
		return notify.NopNotifier{}, nil
	}
	notifier, err := notify.NewTelegramNotifier(cfg.Notify.BotToken, cfg.Notify.ChatID, logger)
	if err != nil {
		logger.Error().Err(err).Msg("telegram notifier init failed")
		return nil, err
	}
	return notifier, nil
}

func startMonitoring(cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

func startReporter(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	var sheetsWriter domain.RollupWriter
	if cfg.Google.Enabled {
		sheetsSvc, err := google.NewSheetsService(
			cfg.Google.CredentialsFile,
			cfg.Google.RollupsSheetID,
			cfg.Google.RollupsSheetName,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Google Sheets service init failed, sheet mirroring disabled")
		} else if err := sheetsSvc.TestConnection(ctx); err != nil {
			logger.Warn().Err(err).Msg("Google Sheets connection test failed, sheet mirroring disabled")
		} else {
			logger.Info().Msg("Google Sheets service initialized")
			sheetsWriter = sheetsSvc
		}
	}

	exporter := export.NewExporter(cfg.Reports.Path, logger)
	reporter := worker.NewReporter(db, exporter, sheetsWriter, cfg.Reports.Interval, logger)
	go reporter.Start(ctx)
}

// runQueueDepthGauge refreshes the queue depth metric on a fixed cadence.
func runQueueDepthGauge(ctx context.Context, db *database.DB, logger *zerolog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := db.CountByStatus(ctx, models.JobQueued)
			if err != nil {
				logger.Warn().Err(err).Msg("queue depth read failed")
				continue
			}
			metrics.SetQueueDepth(depth)
		}
	}
}

package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyaltybot/internal/api"
	"loyaltybot/internal/approval"
	"loyaltybot/internal/bot"
	"loyaltybot/internal/config"
	"loyaltybot/internal/database"
	"loyaltybot/internal/dialog"
	"loyaltybot/internal/events"
	"loyaltybot/internal/export"
	"loyaltybot/internal/google"
	"loyaltybot/internal/logging"
	"loyaltybot/internal/metrics"
	"loyaltybot/internal/notifier"
	"loyaltybot/internal/repository"
	"loyaltybot/internal/scheduler"
	"loyaltybot/internal/service"
	"loyaltybot/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Store.Path(), &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sheetsService, err := initGoogleSheets(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	redisClient, stateService := initStateService(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	metrics.Register()
	eventBus := events.NewEventBus()
	events.RegisterActivityRecorder(eventBus, db, &logger)

	botAPI, err := notifier.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	messenger := notifier.New(botAPI, cfg.Telegram.SendRatePerSec, cfg.Telegram.SendBurst, &logger)

	bossID := cfg.Bot.BossID
	userService := service.NewUserService(sheetsService, db, bossID, &logger)

	// Запускаем воркер синхронизации Google Sheets
	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, messenger, eventBus, bossID, redisClient, worker.RetryPolicy{}, &logger)
	go sheetsWorker.Start(ctx)

	approvalEngine := approval.NewEngine(sheetsService, db, messenger, stateService, eventBus, bossID, &logger)
	dialogEngine := dialog.NewEngine(dialog.Deps{
		Users:             userService,
		State:             stateService,
		Local:             db,
		Remote:            sheetsService,
		Messenger:         messenger,
		Queue:             sheetsWorker,
		Events:            eventBus,
		Rejects:           approvalEngine,
		BossID:            bossID,
		MyApplicationsMax: cfg.Bot.MyApplicationsMax,
	}, &logger)

	jobs := scheduler.New(cfg.Scheduler, db, sheetsService, messenger, eventBus, bossID, &logger)
	if cfg.Scheduler.Enabled {
		go jobs.Start(ctx)
	}

	checks := readinessChecks(db, redisClient, sheetsService)
	if cfg.HTTP.Enabled {
		httpServer := api.NewHTTPServer(cfg.HTTP, db, checks, &logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.GRPC.Enabled {
		grpcServer := api.NewGRPCServer(cfg.GRPC, cfg.HTTP, checks, &logger)
		go func() {
			if err := grpcServer.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("gRPC server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			grpcServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	telegramBot := bot.NewBot(bot.Deps{
		Source:    messenger,
		Messenger: messenger,
		State:     stateService,
		Users:     userService,
		Dialog:    dialogEngine,
		Approval:  approvalEngine,
		Reports:   jobs,
		Exporter:  export.New(cfg.Exports.Path, &logger),
		Remote:    sheetsService,
		Local:     db,
	}, cfg.Bot, &logger)

	logger.Info().Int64("boss_id", bossID).Msg("Бот запущен...")
	telegramBot.Start(ctx)

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
	logger := baseLogger.With().Str("component", "bot-main").Logger()
	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(cfg.Store.MountPath, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

// initGoogleSheets fails only on bad credentials. An unreachable sheet at startup is logged:
// submissions fall back to the local queue until it comes back.
func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.SheetsService, error) {
	sheetsSvc, err := google.NewSheetsService(ctx, cfg.Google, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil, err
	}

	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("Google Sheets connection test failed")
		return sheetsSvc, nil
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc, nil
}

func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	ttl := time.Duration(cfg.Bot.StateTTLHours) * time.Hour
	fallbackRepo := repository.NewMemoryStateRepository(ttl)
	if redisClient == nil {
		return nil, service.NewStateService(fallbackRepo, logger)
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, ttl)
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
	return redisClient, service.NewStateService(stateRepo, logger)
}

func readinessChecks(db *database.DB, redisClient *redis.Client, sheetsSvc *google.SheetsService) []api.Check {
	checks := []api.Check{
		{Name: "database", Required: true, Fn: db.PingContext},
		{Name: "sheets", Fn: sheetsSvc.TestConnection},
	}
	if redisClient != nil {
		checks = append(checks, api.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		}})
	}
	return checks
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"termin/internal/api"
	"termin/internal/bot"
	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/document"
	"termin/internal/domain"
	"termin/internal/events"
	"termin/internal/google"
	"termin/internal/logging"
	"termin/internal/mailer"
	"termin/internal/metrics"
	"termin/internal/models"
	"termin/internal/repository"
	"termin/internal/service"
	"termin/internal/templates"
	"termin/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sheetsCacheRefresh = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, baseLogger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(baseLogger, "api-main")

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(baseLogger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
	})
	if forwarder := initAMQP(cfg, baseLogger); forwarder != nil {
		forwarder.Attach(bus)
		defer func() { _ = forwarder.Close() }()
	}

	sheetsService := initGoogleSheets(ctx, cfg, logger)

	outbox := worker.NewOutboxWorker(db, db, redisClient, cfg.Outbox, logging.Component(baseLogger, "outbox"))

	notifier := service.NewNotifier(
		mailer.NewSMTPSender(cfg.Mail, logging.Component(baseLogger, "mailer")),
		templates.NewResolver(db, templates.NewRenderer()),
		service.NotifierConfig{
			From:         cfg.Mail.From,
			StaffAddress: cfg.Mail.StaffAddress,
			AppName:      cfg.App.Name,
		},
		logging.Component(baseLogger, "notifier"),
	)

	validator := service.NewSlotValidator(db, time.Now, loc)
	serviceLogger := logging.Component(baseLogger, "service")

	bookings := service.NewBookingService(db, validator, notifier, outbox, bus, serviceLogger).
		WithRateLimit(initRateLimiter(ctx, redisClient, baseLogger), cfg.Intake.RateLimit,
			time.Duration(cfg.Intake.RateLimitWindow)*time.Second)
	botAPI := initTelegram(cfg, logger)
	if botAPI != nil {
		staff := service.NewTelegramService(botAPI, cfg.Telegram.StaffChatID)
		if cfg.Telegram.Commands {
			staff.WithActions()
		}
		bookings.WithStaffNotifier(staff)
	}

	confirmations := service.NewConfirmationService(
		db,
		document.NewReceiptRenderer(cfg.App.Name),
		notifier,
		outbox,
		bus,
		serviceLogger,
	)

	outbox.WithNotifier(notifier).WithConfirmations(confirmations)
	if sheetsService != nil {
		outbox.WithSheets(sheetsService)
		go syncSheets(ctx, db, sheetsService, logger)
	}
	if !cfg.Outbox.DisableWorker {
		go outbox.Start(ctx)
	}

	if botAPI != nil && cfg.Telegram.Commands {
		staffBot := bot.NewBot(bot.NewBotWrapper(botAPI), bookings, confirmations, cfg.Telegram, logging.Component(baseLogger, "bot"))
		go staffBot.Start(ctx)
	}

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(baseLogger, "backup"))
	go backup.Start(ctx)

	grpcServer, err := initGRPC(cfg, api.NewAdminService(bookings, confirmations), baseLogger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings:      bookings,
		Confirmations: confirmations,
		Templates:     db,
		Staff:         api.NewStaffAuth(cfg.Staff),
		AppName:       cfg.App.Name,
		ExportDir:     cfg.Exports.Path,
		Outbox:        db,
		Backups:       backup,
	}, baseLogger)

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initRateLimiter prefers redis so limits hold across instances; memory covers outages.
func initRateLimiter(ctx context.Context, redisClient *redis.Client, baseLogger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				memory.Sweep()
			}
		}
	}()

	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(
		repository.NewRedisRateLimiter(redisClient),
		memory,
		logging.Component(baseLogger, "rate-limit"),
	)
}

func initAMQP(cfg *config.Config, baseLogger *zerolog.Logger) *events.AMQPForwarder {
	if cfg.AMQP.URL == "" {
		return nil
	}
	logger := logging.Component(baseLogger, "amqp")
	forwarder, err := events.DialAMQPForwarder(cfg.AMQP, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, events stay in-process")
		return nil
	}
	logger.Info().Str("exchange", cfg.AMQP.Exchange).Msg("amqp forwarder connected")
	return forwarder
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).
			Msg("google sheets not reachable, share the spreadsheet with the service account")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// syncSheets rewrites the mirror once from the DB, then keeps the row index warm.
func syncSheets(ctx context.Context, db *database.DB, sheetsService *google.SheetsService, logger *zerolog.Logger) {
	all, err := db.ListBookings(ctx, models.BookingFilter{})
	if err != nil {
		logger.Error().Err(err).Msg("load bookings for sheets sync")
	} else if err := sheetsService.ReplaceBookingsSheet(ctx, all); err != nil {
		logger.Error().Err(err).Msg("initial sheets sync failed")
	} else {
		logger.Info().Int("bookings", len(all)).Msg("sheets mirror rebuilt")
	}

	sheetsService.StartCacheRefresh(ctx, sheetsCacheRefresh)
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.StaffChatID == 0 {
		return nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, staff chat disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug

	logger.Info().
		Str("bot", botAPI.Self.UserName).
		Int64("chat_id", cfg.Telegram.StaffChatID).
		Bool("commands", cfg.Telegram.Commands).
		Msg("telegram staff chat enabled")
	return botAPI
}

func initGRPC(cfg *config.Config, admin api.AdminServer, logger *zerolog.Logger) (*api.GRPCServer, error) {
	if !cfg.API.GRPC.Enabled {
		return nil, nil
	}
	if len(cfg.API.Auth.APIKeys) == 0 {
		logger.Warn().Msg("grpc enabled without api keys; every admin call will be rejected")
	}
	return api.NewGRPCServer(&cfg.API, admin, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

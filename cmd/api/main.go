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

	"arenda/internal/api"
	"arenda/internal/config"
	"arenda/internal/database"
	"arenda/internal/domain"
	"arenda/internal/events"
	"arenda/internal/google"
	"arenda/internal/lock"
	"arenda/internal/logging"
	"arenda/internal/metrics"
	"arenda/internal/models"
	"arenda/internal/notify"
	"arenda/internal/service"
	"arenda/internal/worker"

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
	cfg, properties, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("database directory creation failed")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("database initialization failed")
		return err
	}
	defer db.Close()
	db.SetProperties(properties)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, locker := initLocker(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	notifier := initNotifier(cfg, &logger)
	eventBus := events.NewEventBus()

	reservations := service.NewReservationService(
		db, locker, eventBus, notifier,
		cfg.Booking.HoldMinutes, cfg.Booking.MaxBookingDays, cfg.Booking.MinBookingAdvance, &logger,
	)
	auctions := service.NewAuctionService(db, locker, eventBus, notifier, &logger)

	bookingGrace := time.Duration(cfg.Sweeper.BookingGraceMinute) * time.Minute
	if cfg.Sweeper.Enabled {
		interval := time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second
		sweeper := worker.NewSweeper(reservations, interval, bookingGrace, &logger)
		go sweeper.Start(ctx)
	}

	if cfg.Sync.Enabled {
		feed, err := initBlockFeed(ctx, cfg, &logger)
		if err != nil {
			return err
		}
		interval := time.Duration(cfg.Sync.IntervalMinutes) * time.Minute
		syncWorker := worker.NewBlocksSyncWorker(feed, reservations, db, interval, &logger)
		go syncWorker.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		port := cfg.Monitoring.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go startMetricsServer(ctx, port, &logger)
	}

	httpServer := api.NewHTTPServer(cfg.API, db, reservations, auctions, bookingGrace, &logger)
	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, []*models.Property, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	propertiesPath := os.Getenv("PROPERTIES_PATH")
	if propertiesPath == "" {
		propertiesPath = "configs/properties.yaml"
	}
	data, err := os.ReadFile(propertiesPath)
	if err != nil {
		logger.Error().Err(err).Msgf("reading %s failed", propertiesPath)
		return nil, nil, zerolog.Logger{}, closer, err
	}

	var propertiesConfig struct {
		Properties []*models.Property `yaml:"properties"`
	}
	if err := yaml.Unmarshal(data, &propertiesConfig); err != nil {
		logger.Error().Err(err).Msg("parsing properties.yaml failed")
		return nil, nil, zerolog.Logger{}, closer, err
	}
	if err := config.ValidateProperties(propertiesConfig.Properties); err != nil {
		logger.Error().Err(err).Msg("properties validation failed")
		return nil, nil, zerolog.Logger{}, closer, err
	}

	return cfg, propertiesConfig.Properties, logger, closer, nil
}

// initLocker builds the per-property locker: redis primary with in-memory
// fallback when redis is configured, in-memory only otherwise.
func initLocker(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, lock.PropertyLocker) {
	wait := time.Duration(cfg.Lock.WaitSeconds) * time.Second
	if wait <= 0 {
		wait = lock.DefaultWait
	}
	ttl := time.Duration(cfg.Lock.LeaseTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = lock.DefaultLeaseTTL
	}

	memoryLocker := lock.NewMemoryPropertyLocker(wait)
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-memory property locks")
		return nil, memoryLocker
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := lock.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	redisLocker := lock.NewRedisPropertyLocker(client, wait, ttl)
	return client, lock.NewFailoverPropertyLocker(redisLocker, memoryLocker, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Managers) == 0 {
		return nil
	}
	notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Managers, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier disabled")
		return nil
	}
	return notifier
}

func initBlockFeed(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.BlockFeed, error) {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BlocksSpreadSheetID == "" {
		logger.Error().Msg("blocks sync enabled but google credentials are missing")
		return nil, os.ErrInvalid
	}

	sheetsSvc, err := google.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.BlocksSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil, err
	}
	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil, err
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc, nil
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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

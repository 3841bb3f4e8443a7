package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicbook/clinic-booking/internal/api"
	"github.com/clinicbook/clinic-booking/internal/booking"
	"github.com/clinicbook/clinic-booking/internal/catalog"
	"github.com/clinicbook/clinic-booking/internal/config"
	"github.com/clinicbook/clinic-booking/internal/db"
	"github.com/clinicbook/clinic-booking/internal/notify"
	"github.com/clinicbook/clinic-booking/internal/payment"
	redisclient "github.com/clinicbook/clinic-booking/internal/redis"
	"github.com/clinicbook/clinic-booking/internal/schedule"
	"github.com/clinicbook/clinic-booking/pkg/logging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	catalogRepo := catalog.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)
	bookingRepo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisScheduleLocker(rdb, cfg.LockTTL)

	var sender notify.EmailSender = notify.NewStubSender(logger)
	if cfg.SendgridAPIKey != "" {
		sender = notify.NewSendGridSender(cfg.SendgridAPIKey, cfg.EmailFrom, cfg.EmailFromName, logger)
	} else {
		logger.Warn().Msg("SENDGRID_API_KEY not set, using stub email sender")
	}
	notifier := notify.NewService(sender)

	schedules := schedule.NewService(scheduleRepo, catalogRepo, logger)
	bookings := booking.NewService(bookingRepo, catalogRepo, locker, notifier, logger)

	var payments *payment.Service
	if cfg.PaymentsEnabled() {
		payments = payment.NewService(bookings, payment.Config{
			TmnCode:    cfg.PayTmnCode,
			HashSecret: cfg.PayHashSecret,
			GatewayURL: cfg.PayGatewayURL,
			ReturnURL:  cfg.PayReturnURL,
		}, logger)
	} else {
		logger.Warn().Msg("payment gateway not configured, payment endpoints disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Bookings:  bookings,
		Schedules: schedules,
		Payments:  payments,
		PgPool:    pgPool,
		Redis:     rdb,
		Logger:    logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

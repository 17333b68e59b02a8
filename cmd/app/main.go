package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mentor-schedule-service/internal/cache"
	"mentor-schedule-service/internal/clients/payment"
	"mentor-schedule-service/internal/config"
	"mentor-schedule-service/internal/events"
	availabilityGet "mentor-schedule-service/internal/http-server/handlers/availability/get"
	availabilitySet "mentor-schedule-service/internal/http-server/handlers/availability/set"
	bookingCalendar "mentor-schedule-service/internal/http-server/handlers/bookings/calendar"
	bookingCancel "mentor-schedule-service/internal/http-server/handlers/bookings/cancel"
	bookingConfirm "mentor-schedule-service/internal/http-server/handlers/bookings/confirm"
	bookingCreate "mentor-schedule-service/internal/http-server/handlers/bookings/create"
	bookingFinish "mentor-schedule-service/internal/http-server/handlers/bookings/finish"
	bookingFlag "mentor-schedule-service/internal/http-server/handlers/bookings/flag"
	bookingGet "mentor-schedule-service/internal/http-server/handlers/bookings/get"
	bookingRating "mentor-schedule-service/internal/http-server/handlers/bookings/rating"
	ratingSummary "mentor-schedule-service/internal/http-server/handlers/ratings/summary"
	sessionList "mentor-schedule-service/internal/http-server/handlers/sessions/list"
	slotGet "mentor-schedule-service/internal/http-server/handlers/slots/get"
	"mentor-schedule-service/internal/http-server/middleware/auth"
	"mentor-schedule-service/internal/lock"
	svc "mentor-schedule-service/internal/service"
	"mentor-schedule-service/internal/storage/sqlstore"
	slogpretty "mentor-schedule-service/pkg/handlers/slogPretty"
	"mentor-schedule-service/pkg/middleware/mwLogger"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	if cfg.Storage.Driver == sqlstore.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0o755); err != nil {
			log.Error("Failed to create storage directory", sl.Err(err))
			os.Exit(1)
		}
	}

	storage, err := sqlstore.New(context.Background(), cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	var (
		locker lock.Locker
		slots  cache.SlotCache
	)
	if cfg.Redis.Enabled {
		client, err := lock.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error("Failed to connect to redis", sl.Err(err))
			os.Exit(1)
		}
		locker = lock.NewRedisLock(client)
		slots = cache.NewRedis(client, cfg.Booking.SlotCacheTTL)
		log.Info("Using redis lock and slot cache", slog.String("addr", cfg.Redis.Addr))
	} else {
		locker = lock.NewLocalLock()
		slots = cache.NewMemory(cfg.Booking.SlotCacheTTL)
		log.Warn("Redis disabled, using in-process lock and slot cache")
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	var rabbit *events.Rabbit
	if cfg.RabbitMQ.Enabled {
		rabbit, err = events.NewRabbit(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("Failed to connect to rabbitmq", sl.Err(err))
			os.Exit(1)
		}
		publisher = rabbit
	}

	payments := payment.New(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout)

	service := svc.NewService(log, storage, locker, slots, publisher, payments, svc.Options{
		LockTTL:                cfg.Booking.LockTTL,
		LockWait:               cfg.Booking.LockWait,
		RatingDisplayThreshold: cfg.Booking.RatingDisplayThreshold,
	})

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(corsSettings(cfg.CORS.AllowedOrigins).Handler)

	// Mentors
	router.Get("/mentors/{mentor_id}/slots", slotGet.New(log, service))
	router.Get("/mentors/{mentor_id}/availability", availabilityGet.New(log, service))
	router.With(auth.Optional(log, cfg.Auth.JWTSecret)).
		Get("/mentors/{mentor_id}/rating", ratingSummary.New(log, service))

	router.Group(func(r chi.Router) {
		r.Use(auth.New(log, cfg.Auth.JWTSecret))

		r.Put("/mentors/{mentor_id}/availability", availabilitySet.New(log, service))

		// Bookings
		r.Post("/bookings", bookingCreate.New(log, service))
		r.Get("/bookings/{id}", bookingGet.New(log, service))
		r.Post("/bookings/{id}/confirm", bookingConfirm.New(log, service))
		r.Put("/bookings/{id}/cancel", bookingCancel.New(log, service))
		r.Post("/bookings/{id}/finish", bookingFinish.New(log, service))
		r.Post("/bookings/{id}/rating", bookingRating.New(log, service))
		r.Post("/bookings/{id}/flag", bookingFlag.New(log, service))
		r.Get("/bookings/{id}/calendar", bookingCalendar.New(log, service))

		// Sessions
		r.Get("/sessions", sessionList.New(log, service))
	})

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			log.Error("Failed to close rabbitmq publisher", sl.Err(err))
		}
	}

	if err := locker.Close(); err != nil {
		log.Error("Failed to close locker", sl.Err(err))
	} else {
		log.Info("Locker closed")
	}

	if err := storage.Close(); err != nil {
		log.Error("Failed to close storage", sl.Err(err))
	} else {
		log.Info("Storage closed")
	}

	log.Info("Shutdown finished, server stopped")

}

func corsSettings(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

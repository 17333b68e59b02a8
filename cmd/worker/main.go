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

	"mentor-schedule-service/internal/cache"
	"mentor-schedule-service/internal/clients/meeting"
	"mentor-schedule-service/internal/clients/payment"
	"mentor-schedule-service/internal/config"
	"mentor-schedule-service/internal/events"
	"mentor-schedule-service/internal/lock"
	svc "mentor-schedule-service/internal/service"
	"mentor-schedule-service/internal/storage/sqlstore"
	slogpretty "mentor-schedule-service/pkg/handlers/slogPretty"
	"mentor-schedule-service/pkg/response"
	"mentor-schedule-service/pkg/sl"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// The worker provisions meeting rooms for confirmed sessions. It consumes
// session.confirmed from the broker and writes the room URL back through the
// same service the API uses.
func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting worker", slog.String("env", cfg.Env))

	if !cfg.RabbitMQ.Enabled {
		log.Error("The worker needs rabbitmq, set rabbitmq.enabled")
		os.Exit(1)
	}

	storage, err := sqlstore.New(context.Background(), cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		}
	}()

	// The worker never reserves slots, so in-process lock and cache are enough.
	service := svc.NewService(
		log,
		storage,
		lock.NewLocalLock(),
		cache.NewMemory(cfg.Booking.SlotCacheTTL),
		events.NewLogPublisher(log),
		payment.New(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout),
		svc.Options{},
	)

	rooms := meeting.New(cfg.Meeting.BaseURL, cfg.Meeting.JoinURL, cfg.Meeting.APIKey, cfg.Meeting.Secret, cfg.Meeting.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return events.Consume(ctx, log, cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue,
			[]events.Type{events.SessionConfirmed}, provision(log, service, rooms))
	})

	health := &http.Server{Addr: cfg.Worker.HealthAddress, Handler: healthRouter()}

	g.Go(func() error {
		log.Info("Starting health server", slog.String("addr", cfg.Worker.HealthAddress))
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()
		return health.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Worker stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("Worker stopped")
}

func provision(log *slog.Logger, service *svc.Service, rooms svc.RoomProvisioner) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		_, err := service.ProvisionMeeting(ctx, rooms, e.BookingID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, response.ErrExternalService):
			return fmt.Errorf("%w: %w", events.ErrRetry, err)
		case errors.Is(err, response.ErrNotFound):
			log.Warn("Booking of event not found", slog.String("booking_id", e.BookingID))
			return nil
		}
		return err
	}
}

func healthRouter() http.Handler {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	return router
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		opts := slogpretty.PrettyHandlerOptions{
			SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
		}
		return slog.New(opts.NewPrettyHandler(os.Stdout))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

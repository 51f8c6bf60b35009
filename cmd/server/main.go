package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rentboard/internal/api"
	"rentboard/internal/cache"
	"rentboard/internal/config"
	"rentboard/internal/database"
	"rentboard/internal/events"
	"rentboard/internal/metrics"
	"rentboard/internal/schedule"
	"rentboard/internal/service"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("RENTBOARD_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	zone, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scheduling timezone")
	}
	calc := schedule.NewCalculatorWithHours(zone, cfg.Scheduling.ShipOutHour, cfg.Scheduling.ShipInHour)

	db, err := database.NewDB(cfg.Database.Path, calc, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	timelineCache := cache.NewTimelineCache(rdb, cfg.CacheTTL())

	bus := events.NewEventBus()
	subscribeEventLog(bus, &logger)
	bookingService := service.NewBookingService(db, calc, bus, &logger)
	refresher := service.NewDeviceStatusRefresher(db, calc, bus, cfg.StatusRefreshInterval(), &logger)
	backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go refresher.Start(ctx)
	go backup.Start(ctx)

	server := api.NewHTTPServer(cfg.Server.Port,
		time.Duration(cfg.Server.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.Server.WriteTimeoutSec)*time.Second,
		db, bookingService, timelineCache, &logger)
	logger.Info().Msg("rentboard started")
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

// subscribeEventLog writes every domain event to the structured log, giving
// an audit trail of booking activity.
func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	types := []string{
		events.TypeRentalCreated,
		events.TypeRentalStatus,
		events.TypeRentalCancelled,
		events.TypeRentalExtended,
		events.TypeDeviceStatus,
	}
	for _, typ := range types {
		bus.Subscribe(typ, func(e events.Event) error {
			logger.Info().
				Str("event", e.Type).
				Int64("rental_id", e.RentalID).
				Int64("device_id", e.DeviceID).
				Str("detail", e.Detail).
				Msg("domain event")
			return nil
		})
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
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

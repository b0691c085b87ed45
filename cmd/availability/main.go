package main

import (
	"context"
	"errors"
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

	"stationbook/internal/api"
	"stationbook/internal/availability"
	"stationbook/internal/cache"
	"stationbook/internal/capacity"
	"stationbook/internal/clock"
	"stationbook/internal/config"
	"stationbook/internal/events"
	"stationbook/internal/metrics"
	"stationbook/internal/slots"
	"stationbook/internal/store"
	"stationbook/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("STATIONBOOK_CONFIG_PATH"))
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := store.Open(ctx, cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Redis.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	loc := cfg.Location()
	engine := availability.NewEngine(db, availability.Options{
		Location:       loc,
		Clock:          clock.Real{},
		Workers:        cfg.Engine.Workers,
		RequestTimeout: cfg.RequestTimeout(),
		MinAdvance:     cfg.MinAdvance(),
		MaxAdvanceDays: cfg.Engine.MaxAdvanceDays,
		Stride:         slots.Stride(cfg.Engine.SlotStride),
		Limiter:        capacity.NewHourlyDailyLimiter(db, db),
	}, &logger)

	cached := cache.New(engine, rdb, cache.Options{
		TTL:        cfg.CacheTTL(),
		MinAdvance: cfg.MinAdvance(),
		Location:   loc,
	}, &logger)

	bus := events.NewBus(&logger)
	bus.Subscribe(func(ctx context.Context, _ events.Event) error {
		return cached.Purge(ctx)
	}, events.CatalogueSynced, events.AppointmentSaved, events.UnavailabilityAdded)
	db.UseEvents(bus)

	// Initial load + hot reload of the station catalogue
	if err := config.WatchStations(ctx, cfg.Stations.Path, cfg.StationsReloadInterval(), &logger, func(updated *config.StationsConfig) {
		if err := db.SyncStationsFromConfig(ctx, updated, loc); err != nil {
			logger.Error().Err(err).Msg("failed to apply stations config")
			return
		}
		logger.Info().Time("reloaded_at", time.Now()).Str("catalogue", updated.String()).Msg("stations config reloaded")
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to load stations config")
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backups := store.NewBackupService(db, cfg.Backup.Path,
			time.Duration(cfg.Backup.IntervalHours)*time.Hour,
			time.Duration(cfg.Backup.RetentionDays)*24*time.Hour,
			&logger)
		go backups.Start(ctx)
	}

	server := api.NewHTTPServer(cached, db, api.Options{
		Address:        cfg.HTTP.Address,
		Location:       loc,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	}, &logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
		if err := shutdownTracing(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	logger.Info().Str("timezone", loc.String()).Msg("stationbook started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}
	<-ctx.Done()
	logger.Info().Msg("stationbook stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", cfg.Tracing.ServiceName).Logger()
}

func startHealthServer(ctx context.Context, port int, db *store.Store, rdb *redis.Client, logger *zerolog.Logger) {
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

	serve(ctx, "health", fmt.Sprintf(":%d", port), mux, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, "metrics", fmt.Sprintf(":%d", port), mux, logger)
}

func serve(ctx context.Context, name, addr string, h http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}

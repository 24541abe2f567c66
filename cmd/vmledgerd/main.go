package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vmledger/internal/config"
	"vmledger/pkg/bus"
	"vmledger/pkg/db"
	"vmledger/pkg/telemetry"
	"vmledger/services/api"
	"vmledger/services/inventory"
	"vmledger/services/scheduler"
)

const serviceName = "vmledgerd"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	shutdownTelemetry, httpMiddleware, log, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		panic(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	orm, err := db.OpenGorm(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open gorm session")
	}
	defer func() {
		if err := db.CloseGorm(orm); err != nil {
			log.Error().Err(err).Msg("close gorm session")
		}
	}()

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		eventBus, err = bus.New(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats")
		}
		defer eventBus.Close()
	}

	store, err := inventory.NewStore(orm, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("build store")
	}

	fetcher, err := inventory.NewHTTPFetcher(cfg.CollectorEndpoint, cfg.CollectorTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("build fetcher")
	}

	coord, err := inventory.NewCoordinator(store, fetcher, log,
		inventory.WithWorkers(cfg.SyncWorkers),
		inventory.WithBus(eventBus),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build coordinator")
	}

	svc, err := inventory.NewService(store)
	if err != nil {
		log.Fatal().Err(err).Msg("build service")
	}

	ready := func(ctx context.Context) error { return db.Ping(ctx, pool) }
	handlerAPI, err := api.New(svc, coord, ready, log, api.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build api")
	}
	routes, err := handlerAPI.Routes()
	if err != nil {
		log.Fatal().Err(err).Msg("build routes")
	}

	if cfg.SchedulerEnabled {
		sched, err := scheduler.New(coord, cfg.SyncInterval, log)
		if err != nil {
			log.Fatal().Err(err).Msg("build scheduler")
		}
		go func() {
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpMiddleware(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("starting vmledgerd")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vmledger/services/inventory"
)

// SyncEngine starts sync runs. Implemented by inventory.Coordinator.
type SyncEngine interface {
	StartSyncAsync(ctx context.Context, platform inventory.Platform, resource inventory.ResourceType) (inventory.SyncRun, error)
}

// Inventory is the read and override surface. Implemented by inventory.Service.
type Inventory interface {
	EffectiveObject(ctx context.Context, id uuid.UUID) (inventory.EffectiveObject, error)
	ListEffectiveObjects(ctx context.Context, f inventory.ObjectFilter) ([]inventory.EffectiveObject, int64, error)
	SetOverride(ctx context.Context, objectID uuid.UUID, field string, value *string, updatedBy string) (inventory.EffectiveObject, error)
	Overrides(ctx context.Context, objectID uuid.UUID) (map[string]inventory.Override, error)
	Changes(ctx context.Context, f inventory.ChangeFilter) ([]inventory.ChangeView, int64, error)
	LatestRuns(ctx context.Context, platform inventory.Platform) ([]inventory.SyncRun, error)
	Runs(ctx context.Context, f inventory.RunFilter) ([]inventory.SyncRun, int64, error)
}

// Config controls runtime behaviour for the API handlers.
type Config struct {
	AllowedOrigins []string
	RateLimit      int
}

// API wires dependencies and configuration for HTTP handlers.
type API struct {
	inv    Inventory
	engine SyncEngine
	ready  func(context.Context) error
	config Config
	log    zerolog.Logger
}

// New initialises the API layer. ready reports backing-store health for the
// readiness probe; nil means always ready.
func New(inv Inventory, engine SyncEngine, ready func(context.Context) error, log zerolog.Logger, cfg Config) (*API, error) {
	if inv == nil {
		return nil, errors.New("inventory service is required")
	}
	if engine == nil {
		return nil, errors.New("sync engine is required")
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	return &API{
		inv:    inv,
		engine: engine,
		ready:  ready,
		config: cfg,
		log:    log,
	}, nil
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(httprate.Limit(a.config.RateLimit, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sync", a.handleStartSync)
		r.Get("/sync/status", a.handleSyncStatus)
		r.Get("/sync/runs", a.handleListRuns)

		r.Get("/objects", a.handleListObjects)
		r.Get("/objects/{id}", a.handleGetObject)
		r.Get("/objects/{id}/overrides", a.handleListOverrides)
		// Override fields may contain slashes (nic_ip/<network>), so the
		// field is a wildcard rather than a single path segment.
		r.Put("/objects/{id}/overrides/*", a.handlePutOverride)
		r.Delete("/objects/{id}/overrides/*", a.handleDeleteOverride)

		r.Get("/changes", a.handleListChanges)
	})

	return r, nil
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

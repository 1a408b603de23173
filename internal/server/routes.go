package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vizquery/vizquery/internal/chartgen"
	"github.com/vizquery/vizquery/internal/executor"
	"github.com/vizquery/vizquery/internal/handler"
	"github.com/vizquery/vizquery/internal/llm"
	"github.com/vizquery/vizquery/internal/middleware"
	"github.com/vizquery/vizquery/internal/pipeline"
	"github.com/vizquery/vizquery/internal/registry"
	"github.com/vizquery/vizquery/internal/source"
	"github.com/vizquery/vizquery/internal/sqlgen"
)

// setupRoutes returns (router, registry, error) so the registry can be
// closed on shutdown.
func (s *Server) setupRoutes() (http.Handler, *registry.Registry, error) {
	cfg := s.cfg
	ctx := context.Background()

	// ─── Data sources ───────────────────────────────────────────────────────────
	reg := registry.New(source.PostgresPoolConfig{
		MaxOpenConns:    cfg.PoolMaxOpenConns,
		MaxIdleConns:    cfg.PoolMaxIdleConns,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
	})
	for _, ds := range cfg.DataSources {
		def := registry.Definition{
			ID:   ds.ID,
			Name: ds.Name,
			Kind: ds.Kind,
			Settings: registry.Settings{
				DSN:             ds.DSN,
				ProjectID:       ds.ProjectID,
				Dataset:         ds.Dataset,
				Location:        ds.Location,
				CredentialsFile: ds.CredsFile,
			},
		}
		if def.Name == "" {
			def.Name = def.ID
		}
		for _, ex := range ds.Exemplars {
			def.Exemplars = append(def.Exemplars, registry.Exemplar{Question: ex.Question, SQL: ex.SQL})
		}
		if err := reg.Register(ctx, def); err != nil {
			log.Warn().Err(err).Str("data_source", ds.ID).Msg("data source unavailable at startup")
		}
	}

	// ─── AI completer ───────────────────────────────────────────────────────────
	var completer llm.Completer
	if cfg.AnthropicAPIKey != "" {
		completer = llm.NewAnthropic(cfg.AnthropicAPIKey, cfg.Model, cfg.AnthropicBaseURL)
	} else {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - query translation disabled")
	}

	log.Info().
		Int("data_sources", len(cfg.DataSources)).
		Bool("translation_enabled", completer != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - all API requests will be rejected")
	}

	// ─── Pipeline ───────────────────────────────────────────────────────────────
	var pipe *pipeline.Orchestrator
	if completer != nil {
		pipe = pipeline.New(pipeline.Config{
			Registry:       reg,
			Generator:      sqlgen.New(completer),
			ChartGenerator: chartgen.New(completer),
			Executor:       executor.New(cfg.RowCap),
			SnapshotLimits: source.SnapshotLimits{
				MaxTables:  cfg.SnapshotMaxTables,
				MaxColumns: cfg.SnapshotMaxColumns,
			},
			RequestBudget: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
			MaxConcurrent: cfg.MaxConcurrentQueries,
		})
	}

	// ─── Handlers ───────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(reg, completer != nil)
	sourcesH := handler.NewDataSourcesHandler(reg)

	var queryH *handler.QueryHandler
	if pipe != nil {
		queryH = handler.NewQueryHandler(pipe)
	}

	// ─── Router ─────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)

	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.EnableAuth && len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Get("/datasources", sourcesH.List)
			r.Post("/datasource", sourcesH.Register)
			r.Put("/datasource", sourcesH.Replace)
			r.Delete("/datasource", sourcesH.Remove)

			// Registered even without a completer so callers always get
			// the stable JSON error shape instead of a bare 404/405.
			if queryH != nil {
				r.Post("/query", queryH.Execute)
			} else {
				r.Post("/query", handler.QueryDisabled)
			}
		})
	})

	return r, reg, nil
}

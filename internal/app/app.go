package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/morav/folio-backend/internal/catalog"
	"github.com/morav/folio-backend/internal/http/handlers"
	"github.com/morav/folio-backend/internal/ingestion"
	"github.com/morav/folio-backend/internal/modules/chat"
	"github.com/morav/folio-backend/internal/observability"
	"github.com/morav/folio-backend/internal/persona"
	"github.com/morav/folio-backend/internal/platform/embedcache"
	"github.com/morav/folio-backend/internal/platform/envutil"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/openai"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
	"github.com/morav/folio-backend/internal/server"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Router   *gin.Engine
	Vec      vectorstore.Store
	Cache    embedcache.Cache
	Catalog  *catalog.Catalog
	Ingestor *ingestion.Ingestor
	Chat     *chat.Usecases

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "folio-backend",
		Environment: cfg.Env,
		Version:     cfg.Version,
	})

	ai, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	vec, err := wireVectorStore(log, cfg.EmbedDims)
	if err != nil {
		log.Sync()
		return nil, err
	}

	cache, err := wireEmbedCache(log, cfg.CacheProvider)
	if err != nil {
		log.Sync()
		return nil, err
	}

	p, err := persona.Load(cfg.PersonaPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load persona: %w", err)
	}

	embedder := ingestion.NewEmbedder(log, ai, cache, cfg.EmbedDims)
	ingestor := ingestion.NewIngestor(log, vec, embedder, cfg.EmbedDims)
	cat := catalog.New(log, vec, cfg.CatalogTTL)

	uc, err := chat.NewUsecases(chat.UsecasesDeps{
		Log:      log,
		AI:       ai,
		Vec:      vec,
		Embedder: embedder,
		Catalog:  cat,
		Persona:  p,
		Caps:     cfg.Caps,
	})
	if err != nil {
		log.Sync()
		return nil, err
	}

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:   handlers.NewChatHandler(log, uc),
		HealthHandler: handlers.NewHealthHandler(log, vec),
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Router:       router,
		Vec:          vec,
		Cache:        cache,
		Catalog:      cat,
		Ingestor:     ingestor,
		Chat:         uc,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP until the listener fails.
func (a *App) Run() error {
	addr := ":" + a.Cfg.Port
	a.Log.Info("serving http", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Shutdown flushes tracing and closes backends.
func (a *App) Shutdown(ctx context.Context) {
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("embed cache close failed", "error", err)
		}
	}
	a.Log.Sync()
}

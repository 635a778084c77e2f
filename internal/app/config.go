package app

import (
	"time"

	"github.com/morav/folio-backend/internal/modules/chat/steps"
	"github.com/morav/folio-backend/internal/platform/envutil"
	"github.com/morav/folio-backend/internal/platform/logger"
)

type Config struct {
	Env     string
	Version string
	Port    string

	EmbedDims     int
	Caps          steps.RetrievalCaps
	CatalogTTL    time.Duration
	PersonaPath   string
	CacheProvider string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Env:     envutil.String("APP_ENV", "development"),
		Version: envutil.String("APP_VERSION", "dev"),
		Port:    envutil.String("PORT", "8080"),

		EmbedDims: envutil.Int("EMBED_DIMS", 1536),
		Caps: steps.RetrievalCaps{
			TopK:          envutil.Int("RETRIEVAL_TOP_K", 40),
			MaxMain:       envutil.Int("RETRIEVAL_MAX_MAIN", 10),
			MaxBackground: envutil.Int("RETRIEVAL_MAX_BACKGROUND", 2),
			MaxRelated:    envutil.Int("RETRIEVAL_MAX_RELATED", 6),
		},
		CatalogTTL:    time.Duration(envutil.Int("CATALOG_TTL_SECONDS", 300)) * time.Second,
		PersonaPath:   envutil.String("PERSONA_PATH", ""),
		CacheProvider: envutil.String("CACHE_PROVIDER", "memory"),
	}
	log.Info("config loaded",
		"env", cfg.Env,
		"port", cfg.Port,
		"embed_dims", cfg.EmbedDims,
		"cache_provider", cfg.CacheProvider,
	)
	return cfg
}

package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/morav/folio-backend/internal/platform/embedcache"
	"github.com/morav/folio-backend/internal/platform/envutil"
	"github.com/morav/folio-backend/internal/platform/logger"
)

var (
	newMemoryCache   = embedcache.NewMemory
	newSQLiteCache   = embedcache.NewSQLite
	newPostgresCache = embedcache.NewPostgres
	newRedisCache    = embedcache.NewRedis
)

type CacheBootstrapErrorCode string

const (
	CacheBootstrapErrorInvalidProvider CacheBootstrapErrorCode = "invalid_provider"
	CacheBootstrapErrorMissingDSN      CacheBootstrapErrorCode = "missing_dsn"
	CacheBootstrapErrorInitFailed      CacheBootstrapErrorCode = "init_failed"
)

type CacheBootstrapError struct {
	Code     CacheBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *CacheBootstrapError) Error() string {
	if e == nil {
		return "embed cache bootstrap failed"
	}
	return fmt.Sprintf("embed cache bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *CacheBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// wireEmbedCache selects the embedding cache backend from CACHE_PROVIDER.
func wireEmbedCache(log *logger.Logger, provider string) (embedcache.Cache, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "memory":
		return newMemoryCache(), nil
	case "sqlite":
		cache, err := newSQLiteCache(log, envutil.String("CACHE_SQLITE_PATH", "embedcache.db"))
		if err != nil {
			return nil, &CacheBootstrapError{Code: CacheBootstrapErrorInitFailed, Provider: "sqlite", Cause: err}
		}
		return cache, nil
	case "postgres":
		dsn := envutil.String("CACHE_POSTGRES_DSN", "")
		if dsn == "" {
			return nil, &CacheBootstrapError{
				Code:     CacheBootstrapErrorMissingDSN,
				Provider: "postgres",
				Cause:    fmt.Errorf("CACHE_POSTGRES_DSN is required"),
			}
		}
		cache, err := newPostgresCache(log, dsn)
		if err != nil {
			return nil, &CacheBootstrapError{Code: CacheBootstrapErrorInitFailed, Provider: "postgres", Cause: err}
		}
		return cache, nil
	case "redis":
		addr := envutil.String("CACHE_REDIS_ADDR", "localhost:6379")
		ttl := time.Duration(envutil.Int("CACHE_REDIS_TTL_SECONDS", 0)) * time.Second
		cache, err := newRedisCache(log, addr, ttl)
		if err != nil {
			return nil, &CacheBootstrapError{Code: CacheBootstrapErrorInitFailed, Provider: "redis", Cause: err}
		}
		return cache, nil
	default:
		return nil, &CacheBootstrapError{
			Code:     CacheBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("expected one of memory, sqlite, postgres, redis"),
		}
	}
}

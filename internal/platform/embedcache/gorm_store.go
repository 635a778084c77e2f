package embedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/morav/folio-backend/internal/platform/logger"
)

// EmbeddingRecord is the persisted cache row. The vector is stored as JSON:
// rows are read back rarely (only on cache hits during reindex), so a
// columnar layout buys nothing here.
type EmbeddingRecord struct {
	Key       string         `gorm:"primaryKey;size:64"`
	Vector    datatypes.JSON `gorm:"not null"`
	Dims      int            `gorm:"not null"`
	UpdatedAt time.Time
}

func (EmbeddingRecord) TableName() string { return "embedding_cache" }

type gormCache struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSQLite opens (or creates) a local sqlite-backed cache.
func NewSQLite(log *logger.Logger, path string) (Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(path) == "" {
		path = "embedcache.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite embed cache: %w", err)
	}
	return newGormCache(log.With("service", "EmbedCacheSQLite"), db)
}

// NewPostgres connects to a postgres-backed cache using a DSN.
func NewPostgres(log *logger.Logger, dsn string) (Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("missing postgres DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres embed cache: %w", err)
	}
	return newGormCache(log.With("service", "EmbedCachePostgres"), db)
}

func newGormCache(log *logger.Logger, db *gorm.DB) (Cache, error) {
	if err := db.AutoMigrate(&EmbeddingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate embedding_cache: %w", err)
	}
	return &gormCache{db: db, log: log}, nil
}

func (c *gormCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var rec EmbeddingRecord
	err := c.db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, false, err
	}
	if rec.Key == "" || len(rec.Vector) == 0 {
		return nil, false, nil
	}
	var vec []float32
	if err := json.Unmarshal(rec.Vector, &vec); err != nil {
		// A corrupt row is treated as a miss; the caller recomputes and the
		// Put below overwrites it.
		c.log.Warn("Corrupt embedding cache row; treating as miss", "key", key, "error", err)
		return nil, false, nil
	}
	if len(vec) == 0 {
		return nil, false, nil
	}
	return vec, true, nil
}

func (c *gormCache) Put(ctx context.Context, key string, vector []float32) error {
	if key == "" || len(vector) == 0 {
		return nil
	}
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	rec := EmbeddingRecord{
		Key:       key,
		Vector:    datatypes.JSON(raw),
		Dims:      len(vector),
		UpdatedAt: time.Now().UTC(),
	}
	// Save upserts on the primary key: last writer wins, which is fine for
	// idempotent values.
	return c.db.WithContext(ctx).Save(&rec).Error
}

func (c *gormCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

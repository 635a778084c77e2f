// Package catalog maintains the in-memory slug index of portfolio items. It
// is the single source of truth the validator consults for slug existence and
// visibility, refreshed from the vector store on a TTL.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

const (
	defaultTTL     = 5 * time.Minute
	scrollPageSize = 200
	maxScrollPages = 50
)

// Catalog caches item metadata keyed by slug. A refresh that returns zero
// items keeps the previous snapshot, so a transiently empty scroll never
// blanks validation.
type Catalog struct {
	log   *logger.Logger
	store vectorstore.Store
	ttl   time.Duration

	mu        sync.RWMutex
	items     map[string]domain.ContentItem
	refreshed time.Time
}

func New(log *logger.Logger, store vectorstore.Store, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Catalog{
		log:   log,
		store: store,
		ttl:   ttl,
		items: map[string]domain.ContentItem{},
	}
}

// Lookup returns the item for slug, refreshing the snapshot first when stale.
func (c *Catalog) Lookup(ctx context.Context, slug string) (domain.ContentItem, bool) {
	c.ensureFresh(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[slug]
	return item, ok
}

// Snapshot returns a copy of the current slug index.
func (c *Catalog) Snapshot(ctx context.Context) map[string]domain.ContentItem {
	c.ensureFresh(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.ContentItem, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out
}

// Refresh forces a reload regardless of TTL.
func (c *Catalog) Refresh(ctx context.Context) error {
	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		c.log.Warn("catalog refresh returned no items; keeping previous snapshot")
		c.mu.Lock()
		c.refreshed = time.Now()
		c.mu.Unlock()
		return nil
	}
	c.mu.Lock()
	c.items = items
	c.refreshed = time.Now()
	c.mu.Unlock()
	c.log.Info("catalog refreshed", "items", len(items))
	return nil
}

func (c *Catalog) ensureFresh(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.refreshed) >= c.ttl
	c.mu.RUnlock()
	if !stale {
		return
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.Warn("catalog refresh failed; serving stale snapshot", "error", err)
		c.mu.Lock()
		// Back off until the next TTL window instead of hammering the store.
		c.refreshed = time.Now()
		c.mu.Unlock()
	}
}

func (c *Catalog) load(ctx context.Context) (map[string]domain.ContentItem, error) {
	filter := map[string]any{domain.PayloadKeyKind: domain.RecordKindItem}
	items := map[string]domain.ContentItem{}
	offset := ""
	for page := 0; page < maxScrollPages; page++ {
		matches, next, err := c.store.Scroll(ctx, filter, scrollPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			item, err := domain.ItemFromPayload(m.Payload)
			if err != nil {
				c.log.Warn("skipping malformed item record", "id", m.ID, "error", err)
				continue
			}
			items[item.Slug] = item
		}
		if next == "" {
			break
		}
		offset = next
	}
	return items, nil
}

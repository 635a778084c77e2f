package ingestion

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/platform/embedcache"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/openai"
)

const embedBatchConcurrency = 4

// Embedder turns chunk text into vectors, consulting the embedding cache
// before calling the model. Cache keys carry the model name and text hash, so
// a model switch or edit re-embeds naturally.
type Embedder struct {
	log    *logger.Logger
	client openai.Client
	cache  embedcache.Cache
	dims   int
}

func NewEmbedder(log *logger.Logger, client openai.Client, cache embedcache.Cache, dims int) *Embedder {
	return &Embedder{log: log, client: client, cache: cache, dims: dims}
}

// EmbedQuery embeds a single retrieval query. Queries are never cached.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := e.client.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedChunks embeds chunks for items, serving cache hits and batching the
// misses through a bounded worker group. The returned slice is positionally
// aligned with chunks.
func (e *Embedder) EmbedChunks(ctx context.Context, items map[string]domain.ContentItem, chunks []domain.ContentChunk) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	missIdx := make([]int, 0, len(chunks))

	for i, chunk := range chunks {
		fp := e.fingerprint(items, chunk)
		vec, ok, err := e.cache.Get(ctx, fp.Key())
		if err != nil {
			e.log.Warn("embed cache read failed", "slug", chunk.Slug, "error", err)
		}
		if ok && len(vec) == e.dims {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}
	e.log.Info("embedding chunks", "total", len(chunks), "cache_misses", len(missIdx))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchConcurrency)
	for _, idx := range missIdx {
		idx := idx
		g.Go(func() error {
			chunk := chunks[idx]
			item := items[chunk.Slug]
			text := domain.EmbeddingPrefix(item) + chunk.Text
			vecs, err := e.client.Embed(gctx, []string{text})
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunk.VectorID(), err)
			}
			if len(vecs) != 1 {
				return fmt.Errorf("embed chunk %s: expected 1 vector, got %d", chunk.VectorID(), len(vecs))
			}
			out[idx] = vecs[0]
			if err := e.cache.Put(gctx, e.fingerprint(items, chunk).Key(), vecs[0]); err != nil {
				e.log.Warn("embed cache write failed", "slug", chunk.Slug, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) fingerprint(items map[string]domain.ContentItem, chunk domain.ContentChunk) embedcache.Fingerprint {
	item := items[chunk.Slug]
	return embedcache.Fingerprint{
		Slug:       chunk.Slug,
		ChunkIndex: chunk.ChunkIndex,
		Text:       domain.EmbeddingPrefix(item) + chunk.Text,
		Model:      e.client.EmbedModel(),
		Dims:       e.dims,
	}
}

// Package ingestion writes the portfolio corpus into the vector store: one
// item record plus one record per chunk, all in a single collection
// partitioned by the kind payload key. It runs out of band from the chat
// pipeline, which only ever reads.
package ingestion

import (
	"context"
	"fmt"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

// Ingestor upserts items and their chunks.
type Ingestor struct {
	log      *logger.Logger
	store    vectorstore.Store
	embedder *Embedder
	dims     int
}

func NewIngestor(log *logger.Logger, store vectorstore.Store, embedder *Embedder, dims int) *Ingestor {
	return &Ingestor{log: log, store: store, embedder: embedder, dims: dims}
}

// UpsertCorpus embeds and writes the full corpus. Item records get their
// summary embedded so the catalog scroll stays cheap while the record still
// participates in search if needed.
func (in *Ingestor) UpsertCorpus(ctx context.Context, items []domain.ContentItem, chunks []domain.ContentChunk) error {
	byslug := make(map[string]domain.ContentItem, len(items))
	for _, item := range items {
		if item.Slug == "" {
			return fmt.Errorf("item with empty slug")
		}
		byslug[item.Slug] = item
	}
	for _, chunk := range chunks {
		if _, ok := byslug[chunk.Slug]; !ok {
			return fmt.Errorf("chunk %s references unknown item %q", chunk.VectorID(), chunk.Slug)
		}
	}

	chunkVecs, err := in.embedder.EmbedChunks(ctx, byslug, chunks)
	if err != nil {
		return err
	}

	vectors := make([]vectorstore.Vector, 0, len(items)+len(chunks))
	for _, item := range items {
		text := item.Title
		if item.Summary != "" {
			text = item.Title + "\n" + item.Summary
		}
		vec, err := in.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return fmt.Errorf("embed item %s: %w", item.Slug, err)
		}
		vectors = append(vectors, vectorstore.Vector{
			ID:       domain.ItemVectorID(item.Slug),
			Values:   vec,
			Metadata: domain.ItemPayload(item),
		})
	}
	for i, chunk := range chunks {
		vectors = append(vectors, vectorstore.Vector{
			ID:       chunk.VectorID(),
			Values:   chunkVecs[i],
			Metadata: domain.ChunkPayload(chunk),
		})
	}

	if err := in.store.Upsert(ctx, vectors); err != nil {
		return fmt.Errorf("upsert corpus: %w", err)
	}
	in.log.Info("corpus upserted", "items", len(items), "chunks", len(chunks))
	return nil
}

// RemoveItem deletes an item record and its chunks. Chunk counts come from
// the store so stale chunks beyond the current corpus are swept too.
func (in *Ingestor) RemoveItem(ctx context.Context, slug string) error {
	filter := map[string]any{
		domain.PayloadKeyKind: domain.RecordKindChunk,
		domain.PayloadKeySlug: slug,
	}
	n, err := in.store.Count(ctx, filter)
	if err != nil {
		return fmt.Errorf("count chunks for %q: %w", slug, err)
	}
	ids := make([]string, 0, n+1)
	ids = append(ids, domain.ItemVectorID(slug))
	for i := 0; i < n; i++ {
		ids = append(ids, domain.ContentChunk{Slug: slug, ChunkIndex: i}.VectorID())
	}
	if err := in.store.DeleteIDs(ctx, ids); err != nil {
		return fmt.Errorf("delete item %q: %w", slug, err)
	}
	in.log.Info("item removed", "slug", slug, "chunks", n)
	return nil
}

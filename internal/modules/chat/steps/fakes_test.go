package steps

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/morav/folio-backend/internal/catalog"
	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/ingestion"
	"github.com/morav/folio-backend/internal/persona"
	"github.com/morav/folio-backend/internal/platform/embedcache"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

type fakeAI struct {
	embed        func(ctx context.Context, inputs []string) ([][]float32, error)
	generateJSON func(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
	streamText   func(ctx context.Context, system, user string, onDelta func(string)) (string, error)
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embed != nil {
		return f.embed(ctx, inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if f.generateJSON != nil {
		return f.generateJSON(ctx, system, user, schemaName, schema)
	}
	return nil, fmt.Errorf("no GenerateJSON stub")
}

func (f *fakeAI) GenerateText(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("no GenerateText stub")
}

func (f *fakeAI) StreamText(ctx context.Context, system, user string, onDelta func(string)) (string, error) {
	if f.streamText != nil {
		return f.streamText(ctx, system, user, onDelta)
	}
	return "", fmt.Errorf("no StreamText stub")
}

func (f *fakeAI) EmbedModel() string { return "text-embedding-test" }

type fakeStore struct {
	query  func(ctx context.Context, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error)
	scroll func(ctx context.Context, filter map[string]any, limit int, offset string) ([]vectorstore.Match, string, error)
}

func (f *fakeStore) Upsert(context.Context, []vectorstore.Vector) error { return nil }

func (f *fakeStore) QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	if f.query != nil {
		return f.query(ctx, q, topK, filter)
	}
	return nil, nil
}

func (f *fakeStore) Scroll(ctx context.Context, filter map[string]any, limit int, offset string) ([]vectorstore.Match, string, error) {
	if f.scroll != nil {
		return f.scroll(ctx, filter, limit, offset)
	}
	return nil, "", nil
}

func (f *fakeStore) Count(context.Context, map[string]any) (int, error) { return 0, nil }
func (f *fakeStore) DeleteIDs(context.Context, []string) error          { return nil }

// collectEmitter records everything the pipeline emits.
type collectEmitter struct {
	stages     []Stage
	directives []domain.Directive
	deltas     []string
	done       []domain.TurnResponse
	failed     []FailureKind
}

func (c *collectEmitter) Stage(_ context.Context, s Stage)  { c.stages = append(c.stages, s) }
func (c *collectEmitter) Delta(_ context.Context, d string) { c.deltas = append(c.deltas, d) }
func (c *collectEmitter) Directive(_ context.Context, d domain.Directive) {
	c.directives = append(c.directives, d)
}
func (c *collectEmitter) Done(_ context.Context, r domain.TurnResponse) { c.done = append(c.done, r) }
func (c *collectEmitter) Failed(_ context.Context, k FailureKind)       { c.failed = append(c.failed, k) }

// testItems is the catalog the fakes serve: two visible experience items, one
// hidden project, one background note.
func testItems() []domain.ContentItem {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return []domain.ContentItem{
		{Slug: "guardtime-po", ContentType: domain.ContentTypeExperience, Title: "Product Owner at Guardtime", Company: "Guardtime", UIVisible: true, UpdatedAt: now},
		{Slug: "positium", ContentType: domain.ContentTypeExperience, Title: "Data Engineer at Positium", Company: "Positium", Role: "Data Engineer", Period: "2019-2021", UIVisible: true, UpdatedAt: now},
		{Slug: "secret-project", ContentType: domain.ContentTypeProject, Title: "Unreleased project", UIVisible: false, UpdatedAt: now},
		{Slug: "about-me", ContentType: domain.ContentTypeBackground, Title: "About me", UIVisible: false, UpdatedAt: now},
	}
}

func itemScrollStub(items []domain.ContentItem) func(context.Context, map[string]any, int, string) ([]vectorstore.Match, string, error) {
	return func(_ context.Context, filter map[string]any, _ int, _ string) ([]vectorstore.Match, string, error) {
		matches := make([]vectorstore.Match, 0, len(items))
		for _, item := range items {
			matches = append(matches, vectorstore.Match{
				ID:      domain.ItemVectorID(item.Slug),
				Payload: domain.ItemPayload(item),
			})
		}
		return matches, "", nil
	}
}

func chunkMatch(slug string, idx int, ct domain.ContentType, score float64, updated time.Time) vectorstore.Match {
	chunk := domain.ContentChunk{
		Slug:        slug,
		ChunkIndex:  idx,
		ContentType: ct,
		Text:        fmt.Sprintf("chunk %d of %s", idx, slug),
		UpdatedAt:   updated,
	}
	return vectorstore.Match{
		ID:      chunk.VectorID(),
		Score:   score,
		Payload: domain.ChunkPayload(chunk),
	}
}

func newTestDeps(t *testing.T, ai *fakeAI, store vectorstore.Store) Deps {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if store == nil {
		store = &fakeStore{scroll: itemScrollStub(testItems())}
	}
	return Deps{
		Log:      log,
		AI:       ai,
		Vec:      store,
		Embedder: ingestion.NewEmbedder(log, ai, embedcache.NewMemory(), 3),
		Catalog:  catalog.New(log, store, time.Minute),
		Persona:  persona.Persona{Name: "Moray Vesik"},
	}
}

package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/platform/embedcache"
	"github.com/morav/folio-backend/internal/platform/logger"
)

type fakeEmbedClient struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEmbedClient) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inputs...)
	f.mu.Unlock()
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 0, 1}
	}
	return out, nil
}

func (f *fakeEmbedClient) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeEmbedClient) GenerateText(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeEmbedClient) StreamText(context.Context, string, string, func(string)) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeEmbedClient) EmbedModel() string { return "text-embedding-test" }

func (f *fakeEmbedClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCorpus() (map[string]domain.ContentItem, []domain.ContentChunk) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	items := map[string]domain.ContentItem{
		"guardtime-po": {
			Slug:        "guardtime-po",
			ContentType: domain.ContentTypeExperience,
			Title:       "Product Owner at Guardtime",
			Company:     "Guardtime",
			Role:        "Product Owner",
			UIVisible:   true,
			UpdatedAt:   now,
		},
	}
	chunks := []domain.ContentChunk{
		{Slug: "guardtime-po", ChunkIndex: 0, ContentType: domain.ContentTypeExperience, Text: "Owned the timestamping product.", UpdatedAt: now},
		{Slug: "guardtime-po", ChunkIndex: 1, ContentType: domain.ContentTypeExperience, Text: "Shipped the client SDK.", UpdatedAt: now},
	}
	return items, chunks
}

func newTestEmbedder(t *testing.T, client *fakeEmbedClient) *Embedder {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewEmbedder(log, client, embedcache.NewMemory(), 3)
}

func TestEmbedChunksPrependsItemContext(t *testing.T) {
	client := &fakeEmbedClient{}
	e := newTestEmbedder(t, client)
	items, chunks := testCorpus()

	vecs, err := e.EmbedChunks(context.Background(), items, chunks)
	if err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}
	if len(vecs) != len(chunks) {
		t.Fatalf("vectors: got=%d want=%d", len(vecs), len(chunks))
	}
	for _, input := range client.calls {
		if !strings.HasPrefix(input, domain.EmbeddingPrefix(items["guardtime-po"])) {
			t.Fatalf("embedded text missing item prefix: %q", input)
		}
	}
}

func TestEmbedChunksServesCacheHits(t *testing.T) {
	client := &fakeEmbedClient{}
	e := newTestEmbedder(t, client)
	items, chunks := testCorpus()

	first, err := e.EmbedChunks(context.Background(), items, chunks)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	callsAfterFirst := client.callCount()
	if callsAfterFirst != len(chunks) {
		t.Fatalf("first pass calls: got=%d", callsAfterFirst)
	}

	second, err := e.EmbedChunks(context.Background(), items, chunks)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if client.callCount() != callsAfterFirst {
		t.Fatalf("second pass should be served from cache, calls=%d", client.callCount())
	}
	for i := range first {
		if len(second[i]) != len(first[i]) || second[i][0] != first[i][0] {
			t.Fatalf("chunk %d: cache returned a different vector", i)
		}
	}
}

func TestEmbedChunksReEmbedsOnTextChange(t *testing.T) {
	client := &fakeEmbedClient{}
	e := newTestEmbedder(t, client)
	items, chunks := testCorpus()

	if _, err := e.EmbedChunks(context.Background(), items, chunks); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	calls := client.callCount()

	chunks[0].Text = "Owned and repositioned the timestamping product."
	if _, err := e.EmbedChunks(context.Background(), items, chunks); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if client.callCount() != calls+1 {
		t.Fatalf("edited chunk should re-embed exactly once, calls=%d want=%d", client.callCount(), calls+1)
	}
}

func TestEmbedQueryReturnsSingleVector(t *testing.T) {
	client := &fakeEmbedClient{}
	e := newTestEmbedder(t, client)

	vec, err := e.EmbedQuery(context.Background(), "product owner security")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vector: got=%v", vec)
	}
	if client.callCount() != 1 {
		t.Fatalf("calls: got=%d", client.callCount())
	}
}

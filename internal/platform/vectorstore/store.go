package vectorstore

import "context"

// Store is the vector database boundary. One collection holds two logical
// record kinds distinguished by payload: content items (metadata-only
// lookups) and content chunks (passages with embeddings).
type Store interface {
	Upsert(ctx context.Context, vectors []Vector) error

	// QueryMatches runs a similarity search and returns ranked matches with
	// their payloads (higher score is better).
	QueryMatches(ctx context.Context, q []float32, topK int, filter map[string]any) ([]Match, error)

	// Scroll lists points matching filter without a query vector, paging by
	// offset token. It returns the page plus the next offset ("" when done).
	Scroll(ctx context.Context, filter map[string]any, limit int, offset string) ([]Match, string, error)

	// Count returns the number of points matching filter (all points when
	// filter is nil).
	Count(ctx context.Context, filter map[string]any) (int, error)

	DeleteIDs(ctx context.Context, ids []string) error
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

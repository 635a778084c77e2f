package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Cache is an explicit key-value store for computed embeddings, keyed by a
// content fingerprint. Values are idempotent given identical inputs, so
// last-writer-wins on concurrent inserts is acceptable.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vector []float32) error
	Close() error
}

// Fingerprint identifies one embedded text. Slug/ChunkIndex are zero-valued
// for ad-hoc texts such as retrieval queries.
type Fingerprint struct {
	Slug       string
	ChunkIndex int
	Text       string
	Model      string
	Dims       int
}

// Key hashes the fingerprint into a stable cache key. The text itself is
// hashed rather than embedded in the key so keys stay bounded.
func (f Fingerprint) Key() string {
	h := sha256.New()
	_, _ = h.Write([]byte(strings.Join([]string{
		f.Slug,
		fmt.Sprintf("%d", f.ChunkIndex),
		textHash(f.Text),
		f.Model,
		fmt.Sprintf("%d", f.Dims),
	}, "|")))
	return "emb:" + hex.EncodeToString(h.Sum(nil))[:40]
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

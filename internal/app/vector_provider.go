package app

import (
	"fmt"

	"github.com/morav/folio-backend/internal/platform/envutil"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/qdrant"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

var newQdrantStore = qdrant.NewStore

type VectorBootstrapErrorCode string

const (
	VectorBootstrapErrorConfigFailed VectorBootstrapErrorCode = "config_failed"
	VectorBootstrapErrorInitFailed   VectorBootstrapErrorCode = "init_failed"
)

type VectorBootstrapError struct {
	Code  VectorBootstrapErrorCode
	Cause error
}

func (e *VectorBootstrapError) Error() string {
	if e == nil {
		return "vector store bootstrap failed"
	}
	return fmt.Sprintf("vector store bootstrap failed (code=%s): %v", e.Code, e.Cause)
}

func (e *VectorBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// wireVectorStore builds the Qdrant config from env and opens the store.
// QDRANT_VECTOR_DIM defaults to the embedding model's dimensionality.
func wireVectorStore(log *logger.Logger, embedDims int) (vectorstore.Store, error) {
	cfg := qdrant.Config{
		URL:        envutil.String("QDRANT_URL", ""),
		APIKey:     envutil.String("QDRANT_API_KEY", ""),
		Collection: envutil.String("QDRANT_COLLECTION", "folio"),
		VectorDim:  envutil.Int("QDRANT_VECTOR_DIM", embedDims),
	}
	if err := qdrant.ValidateConfig(cfg, true); err != nil {
		return nil, &VectorBootstrapError{Code: VectorBootstrapErrorConfigFailed, Cause: err}
	}
	store, err := newQdrantStore(log, cfg)
	if err != nil {
		return nil, &VectorBootstrapError{Code: VectorBootstrapErrorInitFailed, Cause: err}
	}
	return store, nil
}

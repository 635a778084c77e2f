package steps

import (
	"context"

	"github.com/morav/folio-backend/internal/catalog"
	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/ingestion"
	"github.com/morav/folio-backend/internal/persona"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/openai"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

// Deps carries everything the turn pipeline needs. All steps share one deps
// value; steps take only what they use.
type Deps struct {
	Log      *logger.Logger
	AI       openai.Client
	Vec      vectorstore.Store
	Embedder *ingestion.Embedder
	Catalog  *catalog.Catalog
	Persona  persona.Persona
	Caps     RetrievalCaps
}

// RetrievalCaps bound how much context one turn may consume.
type RetrievalCaps struct {
	TopK          int
	MaxMain       int
	MaxBackground int
	MaxRelated    int
}

func (c RetrievalCaps) withDefaults() RetrievalCaps {
	if c.TopK <= 0 {
		c.TopK = 40
	}
	if c.MaxMain <= 0 {
		c.MaxMain = 10
	}
	if c.MaxBackground <= 0 {
		c.MaxBackground = 2
	}
	if c.MaxRelated <= 0 {
		c.MaxRelated = 6
	}
	return c
}

// TurnInput is one user turn: the rolling window plus client view state.
type TurnInput struct {
	Window []domain.Message
	State  domain.ClientState
}

// RetrievedChunk is one chunk hit with its similarity score.
type RetrievedChunk struct {
	Chunk domain.ContentChunk
	Score float64
}

// RetrievalResult is the capped, partitioned outcome of one search.
type RetrievalResult struct {
	Main           []RetrievedChunk
	Background     []RetrievedChunk
	CandidateSlugs []string
}

// Stage names the pipeline phases in order.
type Stage string

const (
	StageRouting    Stage = "routing"
	StageRetrieving Stage = "retrieving"
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Emitter receives pipeline progress. The HTTP layer plugs an SSE writer in
// here; the non-streaming path plugs a collector.
type Emitter interface {
	Stage(ctx context.Context, stage Stage)
	Directive(ctx context.Context, d domain.Directive)
	Delta(ctx context.Context, text string)
	Done(ctx context.Context, resp domain.TurnResponse)
	Failed(ctx context.Context, kind FailureKind)
}

// NopEmitter discards everything. Useful in tests and for steps run outside
// a streaming turn.
type NopEmitter struct{}

func (NopEmitter) Stage(context.Context, Stage)                {}
func (NopEmitter) Directive(context.Context, domain.Directive) {}
func (NopEmitter) Delta(context.Context, string)               {}
func (NopEmitter) Done(context.Context, domain.TurnResponse)   {}
func (NopEmitter) Failed(context.Context, FailureKind)         {}

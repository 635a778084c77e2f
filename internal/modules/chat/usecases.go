// Package chat is the turn pipeline behind the portfolio assistant: route,
// retrieve, generate, validate.
package chat

import (
	"context"
	"fmt"

	"github.com/morav/folio-backend/internal/catalog"
	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/ingestion"
	"github.com/morav/folio-backend/internal/modules/chat/steps"
	"github.com/morav/folio-backend/internal/persona"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/openai"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

type UsecasesDeps struct {
	Log      *logger.Logger
	AI       openai.Client
	Vec      vectorstore.Store
	Embedder *ingestion.Embedder
	Catalog  *catalog.Catalog
	Persona  persona.Persona
	Caps     steps.RetrievalCaps
}

type Usecases struct {
	deps steps.Deps
}

func NewUsecases(d UsecasesDeps) (*Usecases, error) {
	if d.Log == nil || d.AI == nil || d.Vec == nil || d.Embedder == nil || d.Catalog == nil {
		return nil, fmt.Errorf("chat usecases missing dependencies")
	}
	return &Usecases{deps: steps.Deps{
		Log:      d.Log,
		AI:       d.AI,
		Vec:      d.Vec,
		Embedder: d.Embedder,
		Catalog:  d.Catalog,
		Persona:  d.Persona,
		Caps:     d.Caps,
	}}, nil
}

// Turn runs one pipeline turn without streaming.
func (u *Usecases) Turn(ctx context.Context, in steps.TurnInput) (domain.TurnResponse, error) {
	return steps.RunTurn(ctx, u.deps, in, steps.NopEmitter{})
}

// StreamTurn runs one pipeline turn, forwarding progress to emit.
func (u *Usecases) StreamTurn(ctx context.Context, in steps.TurnInput, emit steps.Emitter) (domain.TurnResponse, error) {
	return steps.RunTurn(ctx, u.deps, in, emit)
}

package steps

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"

	"github.com/morav/folio-backend/internal/domain"
)

var tracer = otel.Tracer("folio-backend/chat")

// RunTurn drives one full pipeline turn through its stages. Every stage
// degrades in place on failure; only an upstream auth failure reaches the
// failed stage. The emitter sees each stage transition, every prose delta,
// and exactly one terminal event. A cancelled context is the exception on
// both counts: the caller is gone, so the turn returns the context error
// without emitting any terminal event.
func RunTurn(ctx context.Context, deps Deps, in TurnInput, emit Emitter) (domain.TurnResponse, error) {
	degraded := false

	emit.Stage(ctx, StageRouting)
	routeCtx, span := tracer.Start(ctx, "chat.route")
	decision, err := Route(routeCtx, deps, in)
	span.End()
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			return domain.TurnResponse{}, err
		}
		if IsFatal(err) {
			return failTurn(ctx, deps, emit, err)
		}
		degraded = true
	}
	if d, ok := directiveFor(decision); ok {
		emit.Directive(ctx, d)
	}

	emit.Stage(ctx, StageRetrieving)
	tone := decision.Tone
	retrCtx, span := tracer.Start(ctx, "chat.retrieve")
	retrieval, err := Retrieve(retrCtx, deps, decision)
	span.End()
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			return domain.TurnResponse{}, err
		}
		if IsFatal(err) {
			return failTurn(ctx, deps, emit, err)
		}
		deps.Log.Warn("retrieval unavailable; answering without context", "error", err)
		retrieval = RetrievalResult{}
		tone = domain.ToneApologetic
		degraded = true
	}

	emit.Stage(ctx, StageGenerating)
	genCtx, span := tracer.Start(ctx, "chat.respond")
	respond, err := Respond(genCtx, deps, RespondInput{Turn: in, Decision: decision, Retrieval: retrieval}, emit)
	span.End()
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			deps.Log.Info("turn cancelled by client")
			return domain.TurnResponse{}, err
		}
		return failTurn(ctx, deps, emit, err)
	}
	degraded = degraded || respond.Degraded

	emit.Stage(ctx, StageValidating)
	valCtx, span := tracer.Start(ctx, "chat.validate")
	output := Validate(valCtx, deps, respond.Output, retrieval.CandidateSlugs)
	span.End()

	if ctx.Err() != nil {
		deps.Log.Info("turn cancelled by client")
		return domain.TurnResponse{}, ctx.Err()
	}

	resp := domain.TurnResponse{
		Assistant:      domain.AssistantText{Text: output.Text},
		Classification: decision.Classification,
		Tone:           tone,
		Related:        output.Related,
		Citations:      output.Citations,
		Next:           output.Next,
		Artifacts:      output.Artifacts,
		Degraded:       degraded,
	}
	emit.Stage(ctx, StageDone)
	emit.Done(ctx, resp)
	return resp, nil
}

// directiveFor derives the early UI hint for a routed turn. Only opportunity
// turns move the client off the conversation pane.
func directiveFor(decision domain.RouteDecision) (domain.Directive, bool) {
	if decision.Classification == domain.ClassificationNewOpportunity {
		return domain.Directive{View: "artifacts", Tab: "fit_brief"}, true
	}
	return domain.Directive{}, false
}

func failTurn(ctx context.Context, deps Deps, emit Emitter, err error) (domain.TurnResponse, error) {
	kind := FailureUpstreamAuth
	var pe *PipelineError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	deps.Log.Error("turn failed", "kind", string(kind), "error", err)
	emit.Stage(ctx, StageFailed)
	emit.Failed(ctx, kind)
	return domain.TurnResponse{}, err
}

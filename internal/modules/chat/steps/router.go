package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/morav/folio-backend/internal/domain"
)

const maxSuggestedSlugs = 6

// Route classifies the latest user message and produces the retrieval query.
// Any non-auth failure falls back to general_talk with the raw user message
// as the query, so a broken router never kills a turn.
func Route(ctx context.Context, deps Deps, in TurnInput) (domain.RouteDecision, error) {
	fallback := domain.RouteDecision{
		Classification: domain.ClassificationGeneralTalk,
		Tone:           domain.DefaultTone,
		RetrievalQuery: domain.LastUserMessage(in.Window),
	}

	raw, err := deps.AI.GenerateJSON(ctx,
		routerSystemPrompt(deps.Persona),
		routerUserPrompt(in),
		"route_decision",
		routerSchema(),
	)
	if err != nil {
		perr := classifyUpstream(FailureRouterOutputInvalid, err)
		if perr.Kind == FailureUpstreamAuth {
			return fallback, perr
		}
		deps.Log.Warn("router call failed; using fallback route", "error", err)
		return fallback, perr
	}

	decision, err := parseRouteDecision(raw)
	if err != nil {
		deps.Log.Warn("router output invalid; using fallback route", "error", err)
		return fallback, pipelineErr(FailureRouterOutputInvalid, err)
	}
	if decision.RetrievalQuery == "" {
		decision.RetrievalQuery = fallback.RetrievalQuery
	}
	return decision, nil
}

func parseRouteDecision(raw map[string]any) (domain.RouteDecision, error) {
	rawClass, _ := raw["classification"].(string)
	classification, ok := domain.ParseClassification(rawClass)
	if !ok {
		return domain.RouteDecision{}, fmt.Errorf("unknown classification %q", rawClass)
	}
	query, _ := raw["retrieval_query"].(string)
	reason, _ := raw["reason"].(string)
	tone, _ := raw["tone"].(string)
	tone = strings.ToLower(strings.TrimSpace(tone))
	if tone == "" {
		tone = domain.DefaultTone
	}

	var slugs []string
	if rawSlugs, ok := raw["suggested_slugs"].([]any); ok {
		for _, v := range rawSlugs {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				slugs = append(slugs, strings.TrimSpace(s))
			}
			if len(slugs) == maxSuggestedSlugs {
				break
			}
		}
	}

	var flags domain.NextFlags
	if rawFlags, ok := raw["flags"].(map[string]any); ok {
		flags.OfferMoreExamples, _ = rawFlags["offer_more_examples"].(bool)
		flags.AskForEmail, _ = rawFlags["ask_for_email"].(bool)
	}

	return domain.RouteDecision{
		Classification: classification,
		Tone:           tone,
		RetrievalQuery: strings.TrimSpace(query),
		SuggestedSlugs: slugs,
		Flags:          flags,
		Reason:         strings.TrimSpace(reason),
	}, nil
}

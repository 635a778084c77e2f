package steps

import (
	"fmt"
	"strings"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/persona"
)

// answerPayloadMarker separates the streamed prose from the structured tail
// in one generation. Everything before it is the visible answer; everything
// after it is JSON for the client directives.
const answerPayloadMarker = "<<<DIRECTIVES>>>"

const windowRenderLimit = 12

func routerSystemPrompt(p persona.Persona) string {
	return strings.TrimSpace(strings.Join([]string{
		"You classify the latest visitor message on a personal portfolio site and decide what to search for.",
		"Classifications:",
		"- new_opportunity: the visitor describes a role, project, collaboration, or hiring interest, even loosely",
		"- general_talk: everything else, including greetings, small talk, and general questions about " + p.Name,
		"retrieval_query is a short standalone search query capturing what background material would best support the reply.",
		"tone is a one-word hint for the reply voice (for example warm, professional, direct).",
		"suggested_slugs lists up to 6 portfolio item slugs the reply will likely need; leave it empty when unsure. Never invent slugs.",
		"flags.ask_for_email may only be true for a concrete opportunity; flags.offer_more_examples when the visitor would plausibly want more depth.",
		"Resolve pronouns and references using the conversation. Never leave retrieval_query empty.",
		"Return ONLY JSON matching the schema.",
	}, "\n"))
}

func routerUserPrompt(in TurnInput) string {
	var b strings.Builder
	b.WriteString("CONVERSATION:\n")
	b.WriteString(renderWindow(in.Window))
	if state := renderClientState(in.State); state != "" {
		b.WriteString("\nVISITOR_VIEW:\n")
		b.WriteString(state)
	}
	return strings.TrimSpace(b.String())
}

func routerSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"classification", "tone", "retrieval_query", "suggested_slugs", "flags", "reason"},
		"properties": map[string]any{
			"classification": map[string]any{
				"type": "string",
				"enum": []string{string(domain.ClassificationNewOpportunity), string(domain.ClassificationGeneralTalk)},
			},
			"tone":            map[string]any{"type": "string"},
			"retrieval_query": map[string]any{"type": "string"},
			"suggested_slugs": map[string]any{
				"type":     "array",
				"maxItems": 6,
				"items":    map[string]any{"type": "string"},
			},
			"flags": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"offer_more_examples", "ask_for_email"},
				"properties": map[string]any{
					"offer_more_examples": map[string]any{"type": "boolean"},
					"ask_for_email":       map[string]any{"type": "boolean"},
				},
			},
			"reason": map[string]any{"type": "string"},
		},
	}
}

func answerSystemPrompt(p persona.Persona, classification domain.Classification) string {
	lines := []string{
		p.SystemFragment(),
		"Answer using ONLY the provided context blocks. If the context does not cover something, say so instead of guessing.",
		"Write the reply as plain prose first.",
		"Then, on a new line, write exactly " + answerPayloadMarker + " followed by one JSON object with fields:",
		`- "related": array of {"slug","reason"} for items from the context worth showing next to the reply (most relevant first, at most 6, may be empty)`,
		`- "citations": array of {"type","slug","chunk_id"} tying claims to context chunks (may be empty)`,
		`- "next": {"offer_more_examples": bool, "ask_for_email": bool}`,
	}
	if classification == domain.ClassificationNewOpportunity {
		lines = append(lines,
			`- "artifacts": {"fit_brief": [{"id","title","content"}], "relevant_experience": [{"slug","bullets","relevance"}]} summarizing fit for the described opportunity`,
			"Set ask_for_email true only when the visitor describes a concrete opportunity and has not already shared contact details.",
		)
	} else {
		lines = append(lines,
			"Omit artifacts.",
			"Set ask_for_email false for casual conversation.",
		)
	}
	lines = append(lines,
		"Use only slugs that appear in the context block headers. Never invent slugs.",
		"Nothing may follow the JSON object.",
	)
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// answerUserPrompt assembles the generation input: background chunks first so
// they read as ambient framing, then the main evidence blocks, then the
// conversation and view state.
func answerUserPrompt(in TurnInput, decision domain.RouteDecision, ret RetrievalResult) string {
	var b strings.Builder

	if len(ret.Background) > 0 {
		b.WriteString("BACKGROUND_NOTES (flavor only, never cite or surface these):\n")
		for _, hit := range ret.Background {
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(hit.Chunk.Text))
		}
		b.WriteString("\n")
	}

	if len(ret.Main) > 0 {
		b.WriteString("CONTEXT:\n")
		for _, hit := range ret.Main {
			fmt.Fprintf(&b, "[%s | %s | chunk %d", hit.Chunk.Slug, hit.Chunk.ContentType, hit.Chunk.ChunkIndex)
			if hit.Chunk.Section != "" {
				fmt.Fprintf(&b, " | %s", hit.Chunk.Section)
			}
			b.WriteString("]\n")
			fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(hit.Chunk.Text))
		}
	} else {
		b.WriteString("CONTEXT: (no matching material)\n\n")
	}

	fmt.Fprintf(&b, "CLASSIFICATION: %s\n", decision.Classification)
	if decision.Tone != "" {
		fmt.Fprintf(&b, "TONE: %s\n", decision.Tone)
	}
	if len(decision.SuggestedSlugs) > 0 {
		fmt.Fprintf(&b, "ROUTER_SUGGESTED_ITEMS: %s\n", strings.Join(decision.SuggestedSlugs, ", "))
	}
	if decision.Flags.OfferMoreExamples || decision.Flags.AskForEmail {
		fmt.Fprintf(&b, "ROUTER_FLAGS: offer_more_examples=%t ask_for_email=%t\n",
			decision.Flags.OfferMoreExamples, decision.Flags.AskForEmail)
	}
	if state := renderClientState(in.State); state != "" {
		b.WriteString("VISITOR_VIEW:\n")
		b.WriteString(state)
		b.WriteString("\n")
	}
	b.WriteString("CONVERSATION:\n")
	b.WriteString(renderWindow(in.Window))
	return strings.TrimSpace(b.String())
}

// answerExtractionSchema shapes the stricter re-extraction call used when the
// streamed tail cannot be parsed.
func answerExtractionSchema() map[string]any {
	relatedItems := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"slug", "reason"},
			"properties": map[string]any{
				"slug":   map[string]any{"type": "string"},
				"reason": map[string]any{"type": "string"},
			},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"related", "citations", "next"},
		"properties": map[string]any{
			"related": relatedItems,
			"citations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"type", "slug", "chunk_id"},
					"properties": map[string]any{
						"type":     map[string]any{"type": "string"},
						"slug":     map[string]any{"type": "string"},
						"chunk_id": map[string]any{"type": "string"},
					},
				},
			},
			"next": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"offer_more_examples", "ask_for_email"},
				"properties": map[string]any{
					"offer_more_examples": map[string]any{"type": "boolean"},
					"ask_for_email":       map[string]any{"type": "boolean"},
				},
			},
		},
	}
}

func renderWindow(window []domain.Message) string {
	if len(window) == 0 {
		return "(empty)\n"
	}
	start := 0
	if len(window) > windowRenderLimit {
		start = len(window) - windowRenderLimit
	}
	var b strings.Builder
	for _, msg := range window[start:] {
		role := "visitor"
		switch msg.Role {
		case domain.RoleAssistant:
			role = "assistant"
		case domain.RoleSystem:
			role = "note"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(msg.Text))
	}
	return b.String()
}

func renderClientState(state domain.ClientState) string {
	var parts []string
	if state.Page != "" {
		parts = append(parts, "current page: "+state.Page)
	}
	if state.UI.View != "" {
		parts = append(parts, "current view: "+state.UI.View)
	}
	if state.UI.ArtifactTab != "" {
		parts = append(parts, "active artifact tab: "+state.UI.ArtifactTab)
	}
	if state.Origin != "" {
		parts = append(parts, "arrived from: "+state.Origin)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + "\n"
}

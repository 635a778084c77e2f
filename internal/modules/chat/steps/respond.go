package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/morav/folio-backend/internal/domain"
)

// fallbackAnswerText is streamed when generation produces nothing usable.
const fallbackAnswerText = "Sorry, I hit a snag putting that answer together. Mind asking again?"

type RespondInput struct {
	Turn      TurnInput
	Decision  domain.RouteDecision
	Retrieval RetrievalResult
}

type RespondOutput struct {
	Output   domain.AssistantOutput
	Degraded bool
}

// answerPayload is the structured tail of a generated answer. The visible
// text never travels in it; the streamed prose is authoritative.
type answerPayload struct {
	Related   []domain.RelatedItem `json:"related"`
	Citations []domain.Citation    `json:"citations"`
	Next      domain.NextFlags     `json:"next"`
	Artifacts *domain.Artifacts    `json:"artifacts"`
}

// Respond generates the answer in a single streaming call. The model writes
// prose, then a marker, then a JSON directives object. Prose is forwarded to
// the emitter delta by delta; the tail is parsed after the stream ends. A
// malformed tail gets one stricter re-extraction pass over the streamed
// prose; if that also fails the turn degrades to retrieval-derived directives
// rather than failing. A cancelled stream is neither: the context error is
// returned untouched and nothing further is emitted.
func Respond(ctx context.Context, deps Deps, in RespondInput, emit Emitter) (RespondOutput, error) {
	caps := deps.Caps.withDefaults()
	system := answerSystemPrompt(deps.Persona, in.Decision.Classification)
	user := answerUserPrompt(in.Turn, in.Decision, in.Retrieval)

	split := newMarkerSplitter(func(delta string) {
		emit.Delta(ctx, delta)
	})
	_, err := deps.AI.StreamText(ctx, system, user, split.Write)
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			return RespondOutput{}, err
		}
		if IsFatal(err) {
			return RespondOutput{}, classifyUpstream(FailureAnswerOutputInvalid, err)
		}
		deps.Log.Warn("answer stream failed; degrading", "error", err)
	}
	split.Close()

	prose := split.Prose()
	if prose == "" {
		prose = fallbackAnswerText
		emit.Delta(ctx, prose)
	}

	out := domain.AssistantOutput{Text: prose}
	payload, perr := parseAnswerPayload(split.Tail())
	if perr != nil && err == nil {
		deps.Log.Warn("answer payload unparseable; re-extracting", "error", perr)
		payload, perr = reExtractPayload(ctx, deps, prose, in.Decision.Classification)
		if perr != nil && (IsCancellation(perr) || ctx.Err() != nil) {
			return RespondOutput{}, perr
		}
	}
	if perr != nil || err != nil {
		out.Related = fallbackRelated(in.Retrieval.CandidateSlugs, caps.MaxRelated)
		return RespondOutput{Output: out, Degraded: true}, nil
	}

	out.Related = payload.Related
	out.Citations = payload.Citations
	out.Next = payload.Next
	if in.Decision.Classification == domain.ClassificationNewOpportunity {
		out.Artifacts = payload.Artifacts
	}
	return RespondOutput{Output: out}, nil
}

func parseAnswerPayload(tail string) (answerPayload, error) {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return answerPayload{}, fmt.Errorf("no structured tail in answer")
	}
	var payload answerPayload
	if err := json.Unmarshal([]byte(tail), &payload); err != nil {
		return answerPayload{}, fmt.Errorf("decode answer tail: %w", err)
	}
	return payload, nil
}

// reExtractPayload asks the model to derive the directives from prose it
// already wrote. The prose itself is never regenerated, so the streamed
// deltas stay authoritative.
func reExtractPayload(ctx context.Context, deps Deps, prose string, classification domain.Classification) (answerPayload, error) {
	system := strings.Join([]string{
		"You extract UI directives from a finished portfolio-assistant reply.",
		"Only use item slugs that the reply explicitly references. Never invent slugs.",
		"Return ONLY JSON matching the schema.",
	}, "\n")
	user := "CLASSIFICATION: " + string(classification) + "\nREPLY:\n" + prose
	raw, err := deps.AI.GenerateJSON(ctx, system, user, "answer_directives", answerExtractionSchema())
	if err != nil {
		return answerPayload{}, err
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return answerPayload{}, err
	}
	var payload answerPayload
	if err := json.Unmarshal(buf, &payload); err != nil {
		return answerPayload{}, err
	}
	return payload, nil
}

// fallbackRelated turns retrieval candidates into a bare related list when
// the model gave none. Order is the retrieval aggregation order.
func fallbackRelated(candidates []string, max int) []domain.RelatedItem {
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]domain.RelatedItem, 0, len(candidates))
	for _, slug := range candidates {
		out = append(out, domain.RelatedItem{Slug: slug})
	}
	return out
}

// markerSplitter separates a streamed answer into forwarded prose and an
// unforwarded structured tail. It holds back any suffix that could still turn
// out to be whitespace followed by the marker, so forwarded deltas never
// include the marker or the whitespace directly before it.
type markerSplitter struct {
	emit    func(string)
	pending string
	tail    strings.Builder
	prose   strings.Builder
	hit     bool
}

func newMarkerSplitter(emit func(string)) *markerSplitter {
	return &markerSplitter{emit: emit}
}

func (s *markerSplitter) Write(delta string) {
	if s.hit {
		s.tail.WriteString(delta)
		return
	}
	s.pending += delta
	if idx := strings.Index(s.pending, answerPayloadMarker); idx >= 0 {
		s.forward(strings.TrimRight(s.pending[:idx], " \t\r\n"))
		s.tail.WriteString(s.pending[idx+len(answerPayloadMarker):])
		s.pending = ""
		s.hit = true
		return
	}
	safe := len(s.pending)
	for i := 0; i < len(s.pending); i++ {
		if holdable(s.pending[i:]) {
			safe = i
			break
		}
	}
	if safe > 0 {
		s.forward(s.pending[:safe])
		s.pending = s.pending[safe:]
	}
}

// Close flushes whatever is still held back. Without a marker the whole
// stream is prose.
func (s *markerSplitter) Close() {
	if !s.hit && s.pending != "" {
		s.forward(strings.TrimRight(s.pending, " \t\r\n"))
		s.pending = ""
	}
}

func (s *markerSplitter) Prose() string { return s.prose.String() }
func (s *markerSplitter) Tail() string  { return s.tail.String() }

func (s *markerSplitter) forward(text string) {
	if text == "" {
		return
	}
	s.prose.WriteString(text)
	s.emit(text)
}

// holdable reports whether suffix is whitespace followed by a prefix of the
// marker, meaning it may not be forwarded yet.
func holdable(suffix string) bool {
	j := 0
	for j < len(suffix) {
		c := suffix[j]
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			break
		}
		j++
	}
	rest := suffix[j:]
	if len(rest) > len(answerPayloadMarker) {
		return false
	}
	return strings.HasPrefix(answerPayloadMarker, rest)
}

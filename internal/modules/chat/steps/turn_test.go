package steps

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/platform/openai"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

func scenarioStore() *fakeStore {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &fakeStore{
		scroll: itemScrollStub(testItems()),
		query: func(context.Context, []float32, int, map[string]any) ([]vectorstore.Match, error) {
			return []vectorstore.Match{
				chunkMatch("guardtime-po", 0, domain.ContentTypeExperience, 0.91, now),
				chunkMatch("guardtime-po", 2, domain.ContentTypeExperience, 0.84, now),
				chunkMatch("positium", 1, domain.ContentTypeExperience, 0.78, now),
				chunkMatch("about-me", 0, domain.ContentTypeBackground, 0.70, now),
			}, nil
		},
	}
}

func TestRunTurnNewOpportunity(t *testing.T) {
	tail := `{"related":[{"slug":"guardtime-po","reason":"product ownership in deep tech"}],` +
		`"citations":[{"type":"experience","slug":"guardtime-po","chunk_id":"chunk:guardtime-po:0"}],` +
		`"next":{"offer_more_examples":true,"ask_for_email":true},` +
		`"artifacts":{"fit_brief":[{"id":"fit","title":"Why this fits","content":"Owned a security product end to end."}]}}`
	ai := &fakeAI{
		generateJSON: func(_ context.Context, _, _, schemaName string, _ map[string]any) (map[string]any, error) {
			if schemaName != "route_decision" {
				return nil, fmt.Errorf("unexpected schema %q", schemaName)
			}
			return map[string]any{
				"classification":  "new_opportunity",
				"tone":            "professional",
				"retrieval_query": "product owner security infrastructure",
				"reason":          "visitor is hiring",
			}, nil
		},
		streamText: streamIn("Guardtime is the closest match: I owned the ",
			"timestamping product there.", "\n", answerPayloadMarker, tail),
	}
	deps := newTestDeps(t, ai, scenarioStore())
	emit := &collectEmitter{}

	resp, err := RunTurn(context.Background(), deps, TurnInput{
		Window: userWindow("We're hiring a PO for our security platform, is Moray a fit?"),
	}, emit)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	wantStages := []Stage{StageRouting, StageRetrieving, StageGenerating, StageValidating, StageDone}
	if !reflect.DeepEqual(emit.stages, wantStages) {
		t.Fatalf("stages: got=%v want=%v", emit.stages, wantStages)
	}
	if resp.Classification != domain.ClassificationNewOpportunity {
		t.Fatalf("classification: got=%q", resp.Classification)
	}
	if resp.Degraded {
		t.Fatalf("should not degrade")
	}
	if got := strings.Join(emit.deltas, ""); got != resp.Assistant.Text {
		t.Fatalf("delta concat != assistant text:\ndeltas=%q\ntext=%q", got, resp.Assistant.Text)
	}
	if resp.Tone != "professional" {
		t.Fatalf("tone: got=%q", resp.Tone)
	}
	if len(resp.Related) != 1 || resp.Related[0].Slug != "guardtime-po" {
		t.Fatalf("related: got=%v", resp.Related)
	}
	if resp.Artifacts == nil || len(resp.Artifacts.FitBrief) != 1 {
		t.Fatalf("new opportunity turn should carry artifacts, got=%+v", resp.Artifacts)
	}
	want := domain.Directive{View: "artifacts", Tab: "fit_brief"}
	if len(emit.directives) != 1 || emit.directives[0] != want {
		t.Fatalf("directives: got=%v", emit.directives)
	}
	if len(emit.done) != 1 || len(emit.failed) != 0 {
		t.Fatalf("terminal events: done=%d failed=%d", len(emit.done), len(emit.failed))
	}
	if !reflect.DeepEqual(emit.done[0], resp) {
		t.Fatalf("done event mismatch: got=%+v want=%+v", emit.done[0], resp)
	}
}

func TestRunTurnGeneralTalk(t *testing.T) {
	tail := `{"related":[],"citations":[],"next":{"offer_more_examples":false,"ask_for_email":false}}`
	ai := &fakeAI{
		generateJSON: func(context.Context, string, string, string, map[string]any) (map[string]any, error) {
			return map[string]any{
				"classification":  "general_talk",
				"retrieval_query": "site smalltalk",
				"reason":          "greeting",
			}, nil
		},
		streamText: streamIn("Thanks! Have a look around.", answerPayloadMarker, tail),
	}
	deps := newTestDeps(t, ai, scenarioStore())
	emit := &collectEmitter{}

	resp, err := RunTurn(context.Background(), deps, TurnInput{Window: userWindow("hey, nice site")}, emit)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if resp.Classification != domain.ClassificationGeneralTalk {
		t.Fatalf("classification: got=%q", resp.Classification)
	}
	if resp.Next.AskForEmail {
		t.Fatalf("general talk must not ask for email")
	}
	if resp.Artifacts != nil {
		t.Fatalf("general talk must not carry artifacts")
	}
	if len(emit.directives) != 0 {
		t.Fatalf("general talk must not emit directives, got=%v", emit.directives)
	}
}

func TestRunTurnRouterFailureDegrades(t *testing.T) {
	tail := `{"related":[],"citations":[],"next":{"offer_more_examples":false,"ask_for_email":false}}`
	ai := &fakeAI{
		generateJSON: func(context.Context, string, string, string, map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("model is down")
		},
		streamText: streamIn("Happy to help anyway.", answerPayloadMarker, tail),
	}
	deps := newTestDeps(t, ai, scenarioStore())
	emit := &collectEmitter{}

	resp, err := RunTurn(context.Background(), deps, TurnInput{Window: userWindow("what did you build?")}, emit)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !resp.Degraded {
		t.Fatalf("router failure should mark the turn degraded")
	}
	if resp.Classification != domain.ClassificationGeneralTalk {
		t.Fatalf("fallback classification: got=%q", resp.Classification)
	}
	if len(emit.done) != 1 {
		t.Fatalf("turn should still complete, done=%d", len(emit.done))
	}
}

func TestRunTurnRetrievalFailureTurnsApologetic(t *testing.T) {
	tail := `{"related":[],"citations":[],"next":{"offer_more_examples":false,"ask_for_email":false}}`
	ai := &fakeAI{
		generateJSON: func(context.Context, string, string, string, map[string]any) (map[string]any, error) {
			return map[string]any{
				"classification":  "general_talk",
				"tone":            "warm",
				"retrieval_query": "background",
				"reason":          "question",
			}, nil
		},
		streamText: streamIn("I can't pull up specifics right now, but happy to talk generally.", answerPayloadMarker, tail),
	}
	store := scenarioStore()
	store.query = func(context.Context, []float32, int, map[string]any) ([]vectorstore.Match, error) {
		return nil, fmt.Errorf("qdrant unreachable")
	}
	deps := newTestDeps(t, ai, store)
	emit := &collectEmitter{}

	resp, err := RunTurn(context.Background(), deps, TurnInput{Window: userWindow("what was your last role?")}, emit)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !resp.Degraded {
		t.Fatalf("retrieval failure should mark the turn degraded")
	}
	if resp.Tone != domain.ToneApologetic {
		t.Fatalf("tone: got=%q", resp.Tone)
	}
	if resp.Assistant.Text == "" {
		t.Fatalf("turn must still answer without context")
	}
}

func TestRunTurnClientDisconnectEndsSilently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ai := &fakeAI{
		generateJSON: func(context.Context, string, string, string, map[string]any) (map[string]any, error) {
			return map[string]any{
				"classification":  "general_talk",
				"tone":            "warm",
				"retrieval_query": "background",
				"reason":          "question",
			}, nil
		},
		streamText: func(c context.Context, _, _ string, onDelta func(string)) (string, error) {
			onDelta("I was about to sa")
			cancel()
			return "", c.Err()
		},
	}
	deps := newTestDeps(t, ai, scenarioStore())
	emit := &collectEmitter{}

	_, err := RunTurn(ctx, deps, TurnInput{Window: userWindow("tell me about your work")}, emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got=%v", err)
	}
	if len(emit.done) != 0 || len(emit.failed) != 0 {
		t.Fatalf("cancelled turn must not emit terminal events: done=%d failed=%d", len(emit.done), len(emit.failed))
	}
	for _, s := range emit.stages {
		if s == StageDone || s == StageFailed {
			t.Fatalf("cancelled turn reached terminal stage %q", s)
		}
	}
	if got := strings.Join(emit.deltas, ""); got != "I was about to sa" {
		t.Fatalf("cancellation must not stream fallback text, got=%q", got)
	}
}

func TestRunTurnAuthFailureStopsTurn(t *testing.T) {
	ai := &fakeAI{
		generateJSON: func(context.Context, string, string, string, map[string]any) (map[string]any, error) {
			return nil, &openai.HTTPError{StatusCode: 401, Body: "bad key"}
		},
	}
	deps := newTestDeps(t, ai, scenarioStore())
	emit := &collectEmitter{}

	_, err := RunTurn(context.Background(), deps, TurnInput{Window: userWindow("hello")}, emit)
	if !IsFatal(err) {
		t.Fatalf("want fatal error, got=%v", err)
	}
	wantStages := []Stage{StageRouting, StageFailed}
	if !reflect.DeepEqual(emit.stages, wantStages) {
		t.Fatalf("stages: got=%v want=%v", emit.stages, wantStages)
	}
	if len(emit.failed) != 1 || emit.failed[0] != FailureUpstreamAuth {
		t.Fatalf("failed events: got=%v", emit.failed)
	}
	if len(emit.done) != 0 {
		t.Fatalf("no done event on failure, got=%d", len(emit.done))
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/morav/folio-backend/internal/catalog"
	"github.com/morav/folio-backend/internal/domain"
	"github.com/morav/folio-backend/internal/ingestion"
	"github.com/morav/folio-backend/internal/modules/chat"
	"github.com/morav/folio-backend/internal/persona"
	"github.com/morav/folio-backend/internal/platform/embedcache"
	"github.com/morav/folio-backend/internal/platform/logger"
	"github.com/morav/folio-backend/internal/platform/vectorstore"
)

type stubAI struct{}

func (stubAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubAI) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return map[string]any{
		"classification":  "general_talk",
		"retrieval_query": "portfolio",
		"reason":          "stub",
	}, nil
}

func (stubAI) GenerateText(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (stubAI) StreamText(_ context.Context, _, _ string, onDelta func(string)) (string, error) {
	text := "Hello from the portfolio." + "\n<<<DIRECTIVES>>>" +
		`{"related":[],"citations":[],"next":{"offer_more_examples":false,"ask_for_email":false}}`
	onDelta(text)
	return text, nil
}

func (stubAI) EmbedModel() string { return "text-embedding-test" }

type stubStore struct{}

func (stubStore) Upsert(context.Context, []vectorstore.Vector) error { return nil }
func (stubStore) QueryMatches(context.Context, []float32, int, map[string]any) ([]vectorstore.Match, error) {
	return nil, nil
}
func (stubStore) Scroll(context.Context, map[string]any, int, string) ([]vectorstore.Match, string, error) {
	item := domain.ContentItem{
		Slug:        "guardtime-po",
		ContentType: domain.ContentTypeExperience,
		Title:       "Product Owner at Guardtime",
		UIVisible:   true,
		UpdatedAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	return []vectorstore.Match{{ID: domain.ItemVectorID(item.Slug), Payload: domain.ItemPayload(item)}}, "", nil
}
func (stubStore) Count(context.Context, map[string]any) (int, error) { return 0, nil }
func (stubStore) DeleteIDs(context.Context, []string) error          { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store := stubStore{}
	uc, err := chat.NewUsecases(chat.UsecasesDeps{
		Log:      log,
		AI:       stubAI{},
		Vec:      store,
		Embedder: ingestion.NewEmbedder(log, stubAI{}, embedcache.NewMemory(), 3),
		Catalog:  catalog.New(log, store, time.Minute),
		Persona:  persona.Persona{Name: "Moray Vesik"},
	})
	if err != nil {
		t.Fatalf("usecases: %v", err)
	}
	h := NewChatHandler(log, uc)
	r := gin.New()
	r.POST("/api/chat", h.Turn)
	r.POST("/api/chat/stream", h.StreamTurn)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTurnHappyPath(t *testing.T) {
	r := newTestRouter(t)
	w := postJSON(t, r, "/api/chat", `{"messages":[{"role":"user","text":"hello"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", w.Code, w.Body.String())
	}
	var resp domain.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Assistant.Text != "Hello from the portfolio." {
		t.Fatalf("text: got=%q", resp.Assistant.Text)
	}
	if resp.Classification != domain.ClassificationGeneralTalk {
		t.Fatalf("classification: got=%q", resp.Classification)
	}
}

func TestTurnAcceptsSystemNotes(t *testing.T) {
	r := newTestRouter(t)
	w := postJSON(t, r, "/api/chat",
		`{"messages":[{"role":"system","text":"visitor opened the projects page"},{"role":"user","text":"hello"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", w.Code, w.Body.String())
	}
}

func TestTurnRejectsBadRequests(t *testing.T) {
	r := newTestRouter(t)
	cases := map[string]string{
		"malformed json":     `{"messages":`,
		"empty window":       `{"messages":[]}`,
		"bad role":           `{"messages":[{"role":"robot","text":"x"}]}`,
		"ends in assistant":  `{"messages":[{"role":"assistant","text":"hi"}]}`,
		"ends in note":       `{"messages":[{"role":"user","text":"x"},{"role":"system","text":"note"}]}`,
		"blank user message": `{"messages":[{"role":"user","text":"  "}]}`,
	}
	for name, body := range cases {
		w := postJSON(t, r, "/api/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got=%d body=%s", name, w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), "invalid_request") {
			t.Fatalf("%s: body=%s", name, w.Body.String())
		}
	}
}

func TestStreamTurnEmitsSSE(t *testing.T) {
	r := newTestRouter(t)
	w := postJSON(t, r, "/api/chat/stream", `{"messages":[{"role":"user","text":"hello"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: got=%q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"event: stage", "event: delta", "event: done"} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(body, `"stage":"done"`) {
		t.Fatalf("stream missing done stage:\n%s", body)
	}
	if strings.Contains(body, "event: directive") {
		t.Fatalf("general talk stream must not carry directives:\n%s", body)
	}
}

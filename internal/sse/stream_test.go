package sse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/morav/folio-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type unflushableWriter struct {
	header http.Header
}

func (w *unflushableWriter) Header() http.Header         { return w.header }
func (w *unflushableWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *unflushableWriter) WriteHeader(int)             {}

func TestOpenRejectsNonFlushingWriter(t *testing.T) {
	if _, err := Open(testLogger(t), &unflushableWriter{header: http.Header{}}); err == nil {
		t.Fatalf("want error for writer without flush support")
	}
}

func TestOpenSetsStreamingHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	s, err := Open(testLogger(t), w)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type: got=%q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("cache control: got=%q", got)
	}
	if w.Code != 200 {
		t.Fatalf("status: got=%d", w.Code)
	}
}

func TestSendWritesEventFrames(t *testing.T) {
	w := httptest.NewRecorder()
	s, err := Open(testLogger(t), w)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	s.Send("stage", map[string]string{"stage": "routing"})
	s.Send("delta", map[string]string{"text": "hello"})

	body := w.Body.String()
	if !strings.Contains(body, "event: stage\ndata: {\"stage\":\"routing\"}\n\n") {
		t.Fatalf("stage frame missing:\n%s", body)
	}
	if !strings.Contains(body, "event: delta\ndata: {\"text\":\"hello\"}\n\n") {
		t.Fatalf("delta frame missing:\n%s", body)
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	w := httptest.NewRecorder()
	s, err := Open(testLogger(t), w)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()
	s.Close()

	before := w.Body.Len()
	s.Send("done", map[string]string{"x": "y"})
	if w.Body.Len() != before {
		t.Fatalf("send after close must not write")
	}
}

func TestSendSkipsUnmarshalableData(t *testing.T) {
	w := httptest.NewRecorder()
	s, err := Open(testLogger(t), w)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	before := w.Body.Len()
	s.Send("bad", make(chan int))
	if w.Body.Len() != before {
		t.Fatalf("unmarshalable payload must not write a frame")
	}
}

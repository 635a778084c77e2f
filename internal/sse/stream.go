// Package sse writes server-sent event streams for in-flight chat turns. One
// stream serves exactly one turn; there is no fan-out hub because turns are
// request scoped.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/morav/folio-backend/internal/platform/logger"
)

const heartbeatInterval = 15 * time.Second

// Stream is a single-connection SSE writer. Writes are serialized so the
// pipeline and the heartbeat ticker can interleave safely.
type Stream struct {
	log     *logger.Logger
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// Open prepares w for event streaming and starts the heartbeat. It returns an
// error when the writer cannot flush incrementally.
func Open(log *logger.Logger, w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s := &Stream{log: log, w: w, flusher: flusher, stop: make(chan struct{})}
	go s.heartbeat()
	return s, nil
}

// Send writes one named event with a JSON payload.
func (s *Stream) Send(event string, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		s.log.Warn("failed to marshal sse event", "event", event, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_, _ = fmt.Fprintf(s.w, "event: %s\n", event)
	_, _ = fmt.Fprintf(s.w, "data: %s\n\n", body)
	s.flusher.Flush()
}

// Close stops the heartbeat and marks the stream finished. Safe to call more
// than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stop)
}

func (s *Stream) heartbeat() {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			_, _ = fmt.Fprint(s.w, ": ping\n\n")
			s.flusher.Flush()
			s.mu.Unlock()
		}
	}
}

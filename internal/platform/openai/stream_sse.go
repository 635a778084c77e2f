package openai

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent accumulates the fields of one in-flight server-sent event.
type sseEvent struct {
	name string
	data []string
}

// feed consumes one line (without its terminator) and reports whether a blank
// line just completed the event. Comment lines and unknown fields are
// ignored.
func (e *sseEvent) feed(line string) bool {
	switch {
	case line == "":
		return true
	case strings.HasPrefix(line, ":"):
	case strings.HasPrefix(line, "event:"):
		e.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
	case strings.HasPrefix(line, "data:"):
		e.data = append(e.data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}
	return false
}

// take returns the assembled event and resets the accumulator. An event with
// no data lines yields ok=false; multi-line data is joined with newlines.
func (e *sseEvent) take() (name, data string, ok bool) {
	name, data, ok = e.name, strings.Join(e.data, "\n"), len(e.data) > 0
	e.name, e.data = "", nil
	return name, data, ok
}

// streamSSE decodes a text/event-stream body, invoking onEvent once per
// complete event. A callback error stops the decode and is returned. The
// final event is dispatched even when the stream ends without a trailing
// blank line.
func streamSSE(r io.Reader, onEvent func(event string, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var ev sseEvent
	dispatch := func() error {
		name, data, ok := ev.take()
		if !ok || onEvent == nil {
			return nil
		}
		return onEvent(name, data)
	}

	for sc.Scan() {
		if ev.feed(strings.TrimRight(sc.Text(), "\r")) {
			if err := dispatch(); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return dispatch()
}

package openai

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestStreamSSEAssemblesEvents(t *testing.T) {
	body := ": ping\r\n" +
		"event: response.output_text.delta\r\n" +
		"data: {\"delta\":\"Hel\"}\r\n" +
		"\r\n" +
		"data: line one\n" +
		"data: line two\n" +
		"\n" +
		"event: done\n" +
		"data: [DONE]\n"

	type ev struct{ name, data string }
	var got []ev
	err := streamSSE(strings.NewReader(body), func(name, data string) error {
		got = append(got, ev{name, data})
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	want := []ev{
		{"response.output_text.delta", `{"delta":"Hel"}`},
		{"", "line one\nline two"},
		{"done", "[DONE]"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("events:\ngot=%v\nwant=%v", got, want)
	}
}

func TestStreamSSESkipsDatalessEvents(t *testing.T) {
	body := "event: heartbeat\n\ndata: real\n\n"
	var got []string
	err := streamSSE(strings.NewReader(body), func(_, data string) error {
		got = append(got, data)
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if len(got) != 1 || got[0] != "real" {
		t.Fatalf("events: got=%v", got)
	}
}

func TestStreamSSECallbackErrorStopsDecode(t *testing.T) {
	body := "data: a\n\ndata: b\n\n"
	calls := 0
	err := streamSSE(strings.NewReader(body), func(string, string) error {
		calls++
		return fmt.Errorf("refused")
	})
	if err == nil || calls != 1 {
		t.Fatalf("want stop after first event: err=%v calls=%d", err, calls)
	}
}

package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/morav/folio-backend/internal/platform/openai"
)

// FailureKind classifies pipeline failures. Only auth failures abort a turn;
// everything else degrades in place.
type FailureKind string

const (
	FailureRouterOutputInvalid  FailureKind = "router_output_invalid"
	FailureRetrievalUnavailable FailureKind = "retrieval_unavailable"
	FailureAnswerOutputInvalid  FailureKind = "answer_output_invalid"
	FailureUpstreamAuth         FailureKind = "upstream_auth_failure"
)

type PipelineError struct {
	Kind FailureKind
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func pipelineErr(kind FailureKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// IsFatal reports whether err must abort the turn instead of degrading.
func IsFatal(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) && pe.Kind == FailureUpstreamAuth {
		return true
	}
	return openai.IsAuthError(err)
}

// IsCancellation reports whether err reflects the caller abandoning the turn.
// Cancelled turns end silently: no terminal event, no fallback output.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// classifyUpstream wraps model-call errors, promoting auth failures to the
// fatal kind and tagging everything else with fallback.
func classifyUpstream(fallback FailureKind, err error) *PipelineError {
	if openai.IsAuthError(err) {
		return pipelineErr(FailureUpstreamAuth, err)
	}
	return pipelineErr(fallback, err)
}

package sagalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type TraceInfo struct {
	TraceID string
	SpanID  string
}

// ExtractTraceInfo returns the hex ids of the span active in ctx, or empty
// strings when there is none (unit tests, background jobs).
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds a row stamped with the active trace and the current time.
func NewEntry(
	ctx context.Context,
	sagaID string,
	status Status,
	currentStep string,
	payload string,
	errs []string,
) *SagaLog {
	ti := ExtractTraceInfo(ctx)

	errJSON := "[]"
	if len(errs) > 0 {
		if b, err := json.Marshal(errs); err == nil {
			errJSON = string(b)
		}
	}

	return &SagaLog{
		SagaID:        sagaID,
		Status:        status,
		CurrentStep:   currentStep,
		Payload:       payload,
		ErrorMessages: errJSON,
		TraceID:       ti.TraceID,
		SpanID:        ti.SpanID,
		UpdatedAt:     time.Now().UTC(),
	}
}

// Errors decodes ErrorMessages. An empty column decodes to no errors.
func (l SagaLog) Errors() ([]string, error) {
	if l.ErrorMessages == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(l.ErrorMessages), &out); err != nil {
		return nil, fmt.Errorf("saga %s: decode error messages: %w", l.SagaID, err)
	}
	return out, nil
}

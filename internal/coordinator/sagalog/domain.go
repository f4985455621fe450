// Package sagalog records every state transition of a saga.
//
// Each checkout writes one row per transition (STARTED, STEP_DONE per step,
// then COMPLETED or COMPENSATING/FAILED). The rows answer "what happened to
// settlement X" after the fact and carry the trace id of the request that
// ran it, so a row can be joined with the trace and the JSON logs.
package sagalog

import "time"

type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// Terminal reports whether no further rows are expected for the saga.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SagaLog is one append-only row.
type SagaLog struct {
	// SagaID is the settlement's idempotency key.
	SagaID string `json:"sagaId"`

	Status Status `json:"status"`

	// CurrentStep is the step that just completed or failed.
	CurrentStep string `json:"currentStep,omitempty"`

	// Payload is the JSON input of the saga, set on the STARTED row only.
	Payload string `json:"payload,omitempty"`

	// ErrorMessages is a JSON array of step and compensation failures.
	ErrorMessages string `json:"errorMessages"`

	TraceID string `json:"traceId,omitempty"`
	SpanID  string `json:"spanId,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Package coordinator runs a sequence of compensable steps as one logical
// unit. If a step fails, the steps that already succeeded are compensated
// in reverse order, so callers observe either all effects or none.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jcmexdev/restaurant-pos/internal/coordinator/sagalog"
	"github.com/jcmexdev/restaurant-pos/internal/pkg/telemetry"
)

// Step is a single unit of work in the saga. Compensate must undo the
// effects of a successful Execute.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// CompensationError is returned when a step failed and at least one
// compensation failed too. The system may be left with a partial effect that
// needs manual repair; the saga log holds the details.
type CompensationError struct {
	Cause  error
	Failed []string
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%v (compensation failed for %v)", e.Cause, e.Failed)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// Orchestrator manages one saga execution.
type Orchestrator struct {
	sagaID  string
	steps   []Step
	repo    sagalog.Repository // nil-safe
	payload string
	log     *slog.Logger
}

// NewOrchestrator builds a saga. repo may be nil, in which case transitions
// are only logged.
func NewOrchestrator(sagaID string, steps []Step, repo sagalog.Repository) *Orchestrator {
	return &Orchestrator{
		sagaID: sagaID,
		steps:  steps,
		repo:   repo,
		log:    slog.Default(),
	}
}

// WithPayload records the saga input on the STARTED log row.
func (o *Orchestrator) WithPayload(payload string) *Orchestrator {
	o.payload = payload
	return o
}

func (o *Orchestrator) WithLogger(log *slog.Logger) *Orchestrator {
	if log != nil {
		o.log = log
	}
	return o
}

// Start runs the steps sequentially. On failure every completed step is
// compensated (LIFO) and the step error is returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "saga "+o.sagaID)
	defer span.End()
	span.SetAttributes(attribute.String("saga.id", o.sagaID))

	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)

	var done []Step
	for _, step := range o.steps {
		o.log.DebugContext(ctx, "executing saga step", "saga_id", o.sagaID, "step", step.Name())

		if err := o.execute(ctx, step); err != nil {
			o.log.WarnContext(ctx, "saga step failed, compensating",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "step "+step.Name()+" failed")

			msgs := []string{fmt.Sprintf("step %s failed: %v", step.Name(), err)}
			o.record(ctx, sagalog.StatusCompensating, step.Name(), "", msgs)

			failed, compMsgs := o.rollback(ctx, done)
			msgs = append(msgs, compMsgs...)
			o.record(ctx, sagalog.StatusFailed, step.Name(), "", msgs)

			if len(failed) > 0 {
				return &CompensationError{Cause: err, Failed: failed}
			}
			return err
		}

		done = append(done, step)
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	o.log.InfoContext(ctx, "saga completed", "saga_id", o.sagaID, "steps", len(done))
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := telemetry.Tracer().Start(ctx, step.Name())
	defer span.End()
	if err := step.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) (failed []string, msgs []string) {
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		o.log.InfoContext(ctx, "compensating saga step", "saga_id", o.sagaID, "step", step.Name())
		if err := step.Compensate(ctx); err != nil {
			o.log.ErrorContext(ctx, "CRITICAL: failed to compensate saga step",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			failed = append(failed, step.Name())
			msgs = append(msgs, fmt.Sprintf("compensation of %s failed: %v", step.Name(), err))
		}
	}
	return failed, msgs
}

func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.repo == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.repo.Save(ctx, entry); err != nil {
		o.log.ErrorContext(ctx, "saga log write failed", "saga_id", o.sagaID, "status", status, "error", err)
	}
}

// IsCompensationFailure reports whether err left a saga partially applied.
func IsCompensationFailure(err error) bool {
	var ce *CompensationError
	return errors.As(err, &ce)
}

package coordinator

import "context"

// FuncStep adapts a pair of closures to Step. A nil compensate is a no-op,
// which is only correct for steps with no effect to undo or for the last step.
type FuncStep struct {
	name       string
	execute    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

func NewStep(name string, execute, compensate func(ctx context.Context) error) *FuncStep {
	return &FuncStep{name: name, execute: execute, compensate: compensate}
}

func (s *FuncStep) Name() string { return s.name }

func (s *FuncStep) Execute(ctx context.Context) error { return s.execute(ctx) }

func (s *FuncStep) Compensate(ctx context.Context) error {
	if s.compensate == nil {
		return nil
	}
	return s.compensate(ctx)
}

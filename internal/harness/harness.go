package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/wenmine/tiny-engine/internal/engine"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/testutil"
)

// Harness executes scenario steps against one deterministic stack.
type Harness struct {
	stack    *testutil.Stack
	registry ir.BlockRegistry
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory stack for isolation:
//  1. Build the block registry from dir and inline blocks
//  2. Execute steps in order, collecting the compile log into the trace
//  3. Check each step against its expect clause
//  4. Evaluate assertions against the trace, cache, styles and store
//
// The returned error covers setup failures only. Unmet expectations are
// reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	reg, err := scenario.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	stack, err := testutil.NewStack()
	if err != nil {
		return nil, fmt.Errorf("failed to create stack: %w", err)
	}
	defer stack.Close()

	h := &Harness{
		stack:    stack,
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	result.Cache = stack.Engine.Cache().Snapshot()
	result.CSS = stack.Document.CSS()

	actx := &AssertionContext{
		Store:  stack.Store,
		Styles: stack.Styles,
		Ctx:    ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeStep runs one step, appends its log entries and outcome to the
// trace, and checks the outcome against the step's expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) {
	action, name := step.Action()
	mark := h.stack.Log.Len()

	var (
		err        error
		components int
	)
	switch action {
	case ActionLoad:
		components, err = h.load(ctx, name)
	case ActionCompile:
		_, err = h.compile(ctx, name)
	case ActionWarm:
		err = h.stack.Engine.Warm(ctx, h.registry, step.Warm...)
	case ActionClear:
		h.stack.Engine.Cache().Clear()
		h.stack.Styles.Reset()
	}

	result.AddEntries(h.stack.Log.Since(mark))

	errCode := ""
	if err != nil {
		errCode = string(engine.Code(err))
	}
	result.AddStepResult(index, action, name, errCode, components, h.stack.Engine.Clock().Current())

	h.logger.Info("step completed",
		"step", index,
		"action", action,
		"block", name,
		"error", errCode,
	)

	h.checkExpect(index, step, errCode, components, err, result)
}

func (h *Harness) load(ctx context.Context, name string) (int, error) {
	block, ok := h.registry.Lookup(name)
	if !ok {
		return 0, &engine.UnknownBlockError{Name: name}
	}
	out, err := h.stack.Engine.LoadBlock(ctx, block, h.registry)
	if err != nil {
		return 0, err
	}
	if comp, ok := out.(*module.Component); ok {
		return comp.Count(), nil
	}
	return 0, nil
}

func (h *Harness) compile(ctx context.Context, name string) (ir.Reference, error) {
	block, ok := h.registry.Lookup(name)
	if !ok {
		return "", &engine.UnknownBlockError{Name: name}
	}
	return h.stack.Engine.Compile(ctx, block, h.registry)
}

func (h *Harness) checkExpect(index int, step Step, errCode string, components int, err error, result *Result) {
	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}

	if errCode != want {
		switch {
		case want == "":
			result.AddError(fmt.Sprintf("steps[%d]: expected success, got %s: %v", index, errCode, err))
		case errCode == "":
			result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got success", index, want))
		default:
			result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s: %v", index, want, errCode, err))
		}
		return
	}

	if step.Expect != nil && step.Expect.Components != 0 && step.Expect.Components != components {
		result.AddError(fmt.Sprintf("steps[%d]: expected %d components, got %d", index, step.Expect.Components, components))
	}
}

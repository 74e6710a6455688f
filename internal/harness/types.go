package harness

import (
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/testutil"
)

// Trace event types.
const (
	EventCompile = "compile"
	EventLink    = "link"
	EventResult  = "result"
)

// TraceEvent is one entry of a scenario trace: a compile or link record
// from the engine, or the outcome of a step.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// compile
	Block     string       `json:"block,omitempty"`
	ID        string       `json:"id,omitempty"`
	ScopeID   ir.ScopeID   `json:"scope_id,omitempty"`
	Reference ir.Reference `json:"reference,omitempty"`

	// link
	Parent string `json:"parent,omitempty"`
	Child  string `json:"child,omitempty"`

	// result
	Step       int    `json:"step,omitempty"`
	Action     string `json:"action,omitempty"`
	Error      string `json:"error,omitempty"` // engine.ErrorCode
	Components int    `json:"components,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all step expectations and assertions hold.
	Pass bool `json:"pass"`

	// Trace contains compile, link and result events in emission order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Cache is the final block name -> reference map.
	Cache map[string]ir.Reference `json:"cache,omitempty"`

	// CSS is the final style document text.
	CSS string `json:"css,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEntries appends compile log entries to the trace.
func (r *Result) AddEntries(entries []testutil.Entry) {
	for _, e := range entries {
		switch {
		case e.Compile != nil:
			r.Trace = append(r.Trace, TraceEvent{
				Type:      EventCompile,
				Seq:       e.Compile.Seq,
				Block:     e.Compile.Block,
				ID:        e.Compile.ID,
				ScopeID:   e.Compile.ScopeID,
				Reference: e.Compile.Reference,
			})
		case e.Link != nil:
			r.Trace = append(r.Trace, TraceEvent{
				Type:      EventLink,
				Seq:       e.Link.Seq,
				Parent:    e.Link.Parent,
				Child:     e.Link.Child,
				Reference: e.Link.Reference,
			})
		}
	}
}

// AddStepResult appends the outcome of a step to the trace.
func (r *Result) AddStepResult(step int, action, block, errCode string, components int, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventResult,
		Seq:        seq,
		Step:       step,
		Action:     action,
		Block:      block,
		Error:      errCode,
		Components: components,
	})
}

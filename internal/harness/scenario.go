package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/wenmine/tiny-engine/internal/engine"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/registry"
)

// Scenario defines a conformance test scenario.
// Scenarios drive the engine through a list of steps and assert on the
// resulting trace, cache, styles and store.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Dir is a block directory loaded with registry.LoadDir.
	// Relative paths are resolved against the scenario file location.
	Dir string `yaml:"dir,omitempty"`

	// Blocks are inline block definitions. They replace blocks of the same
	// name loaded from Dir. Code is required.
	Blocks map[string]registry.Entry `yaml:"blocks,omitempty"`

	// Steps run in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine request. Exactly one of Load, Compile, Warm, WarmAll
// and Clear is set.
type Step struct {
	// Load calls Engine.LoadBlock for the named block.
	Load string `yaml:"load,omitempty"`

	// Compile calls Engine.Compile for the named block.
	Compile string `yaml:"compile,omitempty"`

	// Warm calls Engine.Warm for the named blocks.
	Warm []string `yaml:"warm,omitempty"`

	// WarmAll calls Engine.Warm for every block.
	WarmAll bool `yaml:"warm_all,omitempty"`

	// Clear empties the module cache and detaches every registered sheet.
	Clear bool `yaml:"clear,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Step actions.
const (
	ActionLoad    = "load"
	ActionCompile = "compile"
	ActionWarm    = "warm"
	ActionClear   = "clear"
)

// Action returns the step's action and its block argument ("" for warm
// and clear).
func (s Step) Action() (action, block string) {
	switch {
	case s.Load != "":
		return ActionLoad, s.Load
	case s.Compile != "":
		return ActionCompile, s.Compile
	case len(s.Warm) > 0 || s.WarmAll:
		return ActionWarm, ""
	case s.Clear:
		return ActionClear, ""
	}
	return "", ""
}

func (s Step) actionCount() int {
	n := 0
	for _, set := range []bool{s.Load != "", s.Compile != "", len(s.Warm) > 0, s.WarmAll, s.Clear} {
		if set {
			n++
		}
	}
	return n
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected engine.ErrorCode; empty expects success.
	Error string `yaml:"error,omitempty"`

	// Components is the expected size of the loaded component tree
	// (load steps only). Zero skips the check.
	Components int `yaml:"components,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type (see the Assert* constants).
	Type string `yaml:"type"`

	// Block is used by trace_contains, compile_count.
	Block string `yaml:"block,omitempty"`

	// Parent and Child select a link event (trace_contains).
	Parent string `yaml:"parent,omitempty"`
	Child  string `yaml:"child,omitempty"`

	// Blocks is the expected first-compile order (compile_order).
	Blocks []string `yaml:"blocks,omitempty"`

	// Count is the expected number (compile_count, cache_size).
	Count int `yaml:"count,omitempty"`

	// Key selects one style sheet and CSS is the expected substring
	// (style_contains).
	Key string `yaml:"key,omitempty"`
	CSS string `yaml:"css,omitempty"`

	// Table, Where and Expect query the store (final_state).
	// Where fields must match exactly; Expect is a subset match.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertCompileOrder  = "compile_order"
	AssertCompileCount  = "compile_count"
	AssertCacheSize     = "cache_size"
	AssertStyleContains = "style_contains"
	AssertFinalState    = "final_state"
)

var knownErrorCodes = []engine.ErrorCode{
	engine.ErrCodeParse,
	engine.ErrCodeCompile,
	engine.ErrCodeUnknownBlock,
	engine.ErrCodeModuleLoad,
	engine.ErrCodeCycle,
	engine.ErrCodeInternal,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Dir is resolved against the scenario file location.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative Dir against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Dir != "" && !filepath.IsAbs(scenario.Dir) && basePath != "" {
		scenario.Dir = filepath.Join(basePath, scenario.Dir)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// Registry builds the scenario's block registry.
func (s *Scenario) Registry() (ir.BlockRegistry, error) {
	reg := make(ir.BlockRegistry)

	if s.Dir != "" {
		res, errs := registry.LoadDir(s.Dir, registry.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("load blocks from %s: %w", s.Dir, errors.Join(errs...))
		}
		for name, block := range res.Registry {
			reg[name] = block
		}
	}

	for name, entry := range s.Blocks {
		block := ir.BlockDefinition{Name: name, Code: entry.Code, File: entry.File}
		if entry.ChildBlocks != nil {
			block.ChildBlocks = slices.Clone(*entry.ChildBlocks)
		} else {
			block.ChildBlocks = registry.InferChildren(entry.Code)
		}
		reg[name] = block
	}

	return reg, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Dir == "" && len(s.Blocks) == 0 {
		return fmt.Errorf("dir or blocks is required")
	}

	if s.Dir != "" {
		if _, err := os.Stat(s.Dir); os.IsNotExist(err) {
			return fmt.Errorf("block directory not found: %s", s.Dir)
		}
	}

	for name, entry := range s.Blocks {
		if err := ir.ValidateName(name); err != nil {
			return fmt.Errorf("blocks.%s: %w", name, err)
		}
		if entry.Code == "" {
			return fmt.Errorf("blocks.%s: code is required", name)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if n := step.actionCount(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of load, compile, warm, warm_all, clear is required (got %d)", i, n)
		}
		if step.Expect == nil {
			continue
		}
		if step.Expect.Error != "" && !slices.Contains(knownErrorCodes, engine.ErrorCode(step.Expect.Error)) {
			return fmt.Errorf("steps[%d].expect: unknown error code %q", i, step.Expect.Error)
		}
		if step.Expect.Components != 0 && step.Load == "" {
			return fmt.Errorf("steps[%d].expect: components applies to load steps only", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Block == "" && (a.Parent == "" || a.Child == "") {
			return fmt.Errorf("assertions[%d]: block, or parent and child, is required for trace_contains", index)
		}
	case AssertCompileOrder:
		if len(a.Blocks) == 0 {
			return fmt.Errorf("assertions[%d]: blocks list is required for compile_order", index)
		}
	case AssertCompileCount:
		if a.Block == "" {
			return fmt.Errorf("assertions[%d]: block is required for compile_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for compile_count", index)
		}
	case AssertCacheSize:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for cache_size", index)
		}
	case AssertStyleContains:
		if a.CSS == "" {
			return fmt.Errorf("assertions[%d]: css is required for style_contains", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

package harness

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/wenmine/tiny-engine/internal/store"
	"github.com/wenmine/tiny-engine/internal/style"
)

// AssertionError describes a failed assertion. Trace, when set, is
// printed after the expectation.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(e TraceEvent) string {
	switch e.Type {
	case EventCompile:
		return fmt.Sprintf("compile %s -> %s", e.Block, e.Reference)
	case EventLink:
		return fmt.Sprintf("link %s -> %s (%s)", e.Parent, e.Child, e.Reference)
	case EventResult:
		if e.Error != "" {
			return fmt.Sprintf("step %d %s %s: %s", e.Step, e.Action, e.Block, e.Error)
		}
		return fmt.Sprintf("step %d %s %s: ok", e.Step, e.Action, e.Block)
	}
	return e.Type
}

// assertTraceContains checks for a compile event of Block, or a link event
// from Parent to Child.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	if assertion.Block != "" {
		for _, event := range trace {
			if event.Type == EventCompile && event.Block == assertion.Block {
				return nil
			}
		}
		return &AssertionError{
			Type:     AssertTraceContains,
			Expected: fmt.Sprintf("compile of %s", assertion.Block),
			Actual:   "not found in trace",
			Trace:    trace,
		}
	}

	for _, event := range trace {
		if event.Type == EventLink && event.Parent == assertion.Parent && event.Child == assertion.Child {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("link %s -> %s", assertion.Parent, assertion.Child),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertCompileOrder checks that blocks were first compiled in the given
// order. Other compiles may appear between them.
func assertCompileOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventCompile {
			continue
		}
		if _, seen := positions[event.Block]; !seen {
			positions[event.Block] = i + 1 // 1-indexed for readability
		}
	}

	for _, block := range assertion.Blocks {
		if positions[block] == 0 {
			return &AssertionError{
				Type:     AssertCompileOrder,
				Expected: fmt.Sprintf("all blocks compiled: %v", assertion.Blocks),
				Actual:   fmt.Sprintf("missing compile: %s", block),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Blocks); i++ {
		prev := assertion.Blocks[i-1]
		curr := assertion.Blocks[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCompileOrder,
				Expected: fmt.Sprintf("blocks compiled in order: %v", assertion.Blocks),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertCompileCount checks that Block was compiled exactly Count times.
func assertCompileCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventCompile && event.Block == assertion.Block {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertCompileCount,
			Expected: fmt.Sprintf("%d compiles of %s", assertion.Count, assertion.Block),
			Actual:   fmt.Sprintf("%d compiles", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCacheSize checks the number of cached blocks after the last step.
func assertCacheSize(result *Result, assertion Assertion) error {
	if len(result.Cache) != assertion.Count {
		names := make([]string, 0, len(result.Cache))
		for name := range result.Cache {
			names = append(names, name)
		}
		sort.Strings(names)
		return &AssertionError{
			Type:     AssertCacheSize,
			Expected: fmt.Sprintf("%d cached blocks", assertion.Count),
			Actual:   fmt.Sprintf("%d cached blocks %v", len(result.Cache), names),
		}
	}
	return nil
}

// assertStyleContains checks that the style document (or the sheet
// registered under Key) contains CSS.
func assertStyleContains(result *Result, styles *style.Registrar, assertion Assertion) error {
	css := result.CSS
	where := "style document"
	if assertion.Key != "" {
		where = fmt.Sprintf("sheet %q", assertion.Key)
		sheet, ok := styles.Lookup(assertion.Key)
		if !ok {
			return &AssertionError{
				Type:     AssertStyleContains,
				Expected: fmt.Sprintf("%s registered", where),
				Actual:   fmt.Sprintf("registered keys: %v", styles.Keys()),
			}
		}
		css = sheet.CSS
	}

	if !strings.Contains(css, assertion.CSS) {
		return &AssertionError{
			Type:     AssertStyleContains,
			Expected: fmt.Sprintf("%s containing %q", where, assertion.CSS),
			Actual:   fmt.Sprintf("%q", css),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of a store table matches
// Where and that it holds the Expect values. Columns absent from Expect are
// ignored. Table and column names must be plain identifiers; values are
// bound as query parameters.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !sqlIdent.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q", assertion.Table)
	}

	query, args, err := selectQuery(assertion.Table, assertion.Where)
	if err != nil {
		return err
	}

	rows, columns, err := queryRows(ctx, st, query, args)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "readable table " + assertion.Table,
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	where := describeWhere(assertion.Where)
	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, where),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("one row in %s where %s", assertion.Table, where),
			Actual:   fmt.Sprintf("multiple rows matched (%d)", len(rows)),
		}
	}

	row := rows[0]
	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		want := assertion.Expect[key]
		got, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("columns %v", columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, want),
				Actual:   fmt.Sprintf("field %q = %v (%T)", key, got, got),
			}
		}
	}
	return nil
}

// sqlIdent matches the table and column names final_state may interpolate.
var sqlIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// selectQuery builds a parameterised SELECT over table. Where keys are
// sorted so the query text is stable.
func selectQuery(table string, where map[string]any) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)

	var args []any
	for i, col := range slices.Sorted(maps.Keys(where)) {
		if !sqlIdent.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause", col)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(col)
		b.WriteString(" = ?")
		args = append(args, sqlArg(where[col]))
	}
	return b.String(), args, nil
}

// queryRows runs query and returns every row keyed by column name.
func queryRows(ctx context.Context, st *store.Store, query string, args []any) ([]map[string]any, []string, error) {
	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, columns, rows.Err()
}

// sqlArg passes scalars through and stringifies anything else YAML decoded.
func sqlArg(v any) any {
	switch v.(type) {
	case string, int, int64, bool:
		return v
	}
	return fmt.Sprint(v)
}

func describeWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, col := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%v", col, where[col]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML-decoded expectation with a value read
// from SQLite, which returns integers as int64, booleans as 0/1 and TEXT
// sometimes as []byte.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch want := expected.(type) {
	case string:
		switch got := actual.(type) {
		case string:
			return want == got
		case []byte:
			return want == string(got)
		}
		return false
	case int:
		return stateValuesEqual(int64(want), actual)
	case int64:
		switch got := actual.(type) {
		case int64:
			return want == got
		case int:
			return want == int64(got)
		}
		return false
	case bool:
		switch got := actual.(type) {
		case bool:
			return want == got
		case int64:
			return want == (got != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext gives assertions access to the stack a scenario ran on.
type AssertionContext struct {
	Store  *store.Store
	Styles *style.Registrar
	Ctx    context.Context
}

// EvaluateAssertions checks assertions against result and returns one
// message per failure. final_state needs actx.Store; keyed style_contains
// needs actx.Styles.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertCompileOrder:
			err = assertCompileOrder(result.Trace, assertion)
		case AssertCompileCount:
			err = assertCompileCount(result.Trace, assertion)
		case AssertCacheSize:
			err = assertCacheSize(result, assertion)
		case AssertStyleContains:
			if assertion.Key != "" && (actx == nil || actx.Styles == nil) {
				err = fmt.Errorf("assertion[%d]: keyed style_contains requires style context", i)
			} else {
				var styles *style.Registrar
				if actx != nil {
					styles = actx.Styles
				}
				err = assertStyleContains(result, styles, assertion)
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}


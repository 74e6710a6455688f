package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenmine/tiny-engine/internal/compiler"
	"github.com/wenmine/tiny-engine/internal/ident"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/style"
)

const (
	leafB = "<template><span>b</span></template>\n<style scoped>\n.b { color: red; }\n</style>\n"
	leafC = "<template><i>c</i></template>\n"

	parentA = "<template><div><B /></div></template>\n" +
		"<script>\nimport B from './B.vue'\nexport default { components: { B } }\n</script>\n"

	brokenB = "<script>a</script>\n<script>b</script>\n"
)

// countingCompiler counts compilations per block name.
type countingCompiler struct {
	inner Compiler

	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCompiler) CompileFragments(ctx context.Context, block ir.BlockDefinition) (*compiler.Result, error) {
	c.mu.Lock()
	c.counts[block.Name]++
	c.mu.Unlock()
	return c.inner.CompileFragments(ctx, block)
}

func (c *countingCompiler) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

type fixture struct {
	table    *module.Table
	doc      *style.Document
	compiler *countingCompiler
	engine   *Engine
}

func newFixture(opts ...EngineOption) *fixture {
	f := &fixture{
		table: module.NewTable(module.WithRefGenerator(module.NewSequentialRefs("t"))),
		doc:   style.NewDocument(),
	}
	fc := compiler.NewFragmentCompiler(f.table, style.NewRegistrar(f.doc),
		compiler.WithIDGenerator(ident.NewSequence("id")))
	f.compiler = &countingCompiler{inner: fc, counts: make(map[string]int)}
	f.engine = New(f.table, f.compiler, opts...)
	return f
}

func twoLevel() ir.BlockRegistry {
	return ir.BlockRegistry{
		"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: leafB},
	}
}

func TestLoadBlock_Leaf(t *testing.T) {
	f := newFixture()
	reg := twoLevel()

	out, err := f.engine.LoadBlock(context.Background(), reg["B"], reg)
	require.NoError(t, err)

	comp, ok := out.(*module.Component)
	require.True(t, ok)
	assert.Equal(t, ir.Reference("blob:t/3"), comp.Reference)
	assert.Equal(t, "B.vue", comp.File)
	assert.Equal(t, ir.ScopeID("data-v-id00000001"), comp.ScopeID)
	assert.Empty(t, comp.Children)

	assert.Contains(t, f.doc.CSS(), ".b[data-v-id00000001]")
}

func TestLoadBlock_SubstitutesChildReference(t *testing.T) {
	f := newFixture()
	reg := twoLevel()

	out, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	refB, ok := f.engine.Cache().Lookup("B")
	require.True(t, ok)
	refA, ok := f.engine.Cache().Lookup("A")
	require.True(t, ok)
	assert.Equal(t, ir.Reference("blob:t/3"), refB)
	assert.Equal(t, ir.Reference("blob:t/6"), refA)

	// The published script of A imports B by reference, not by path.
	comp := out.(*module.Component)
	script, ok := f.table.Source(comp.Script)
	require.True(t, ok)
	assert.Contains(t, script, "'blob:t/3'")
	assert.NotContains(t, script, "./B.vue")

	require.Len(t, comp.Children, 1)
	assert.Equal(t, refB, comp.Children[0].Reference)
	assert.Equal(t, 2, comp.Count())
}

func TestLoadBlock_SplitChildImport(t *testing.T) {
	f := newFixture()
	parent := "<template><div><B /></div></template>\n" +
		"<script>\nimport B\n  from './B.vue'\nexport default { components: { B } }\n</script>\n"
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: parent, ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: leafB},
	}

	out, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	comp := out.(*module.Component)
	require.Len(t, comp.Children, 1)
	assert.Equal(t, ir.Reference("blob:t/3"), comp.Children[0].Reference)
}

func TestLoadBlock_UndeclaredChildImport(t *testing.T) {
	sources := map[string]string{
		"split":     "<script>\nimport C\n  from './C.vue'\nexport default {}\n</script>\n",
		"compact":   "<script>\nimport{C}from'./C.vue'\nexport default {}\n</script>\n",
		"re-export": "<script>\nexport { default as C } from './C.vue'\nexport default {}\n</script>\n",
	}

	for name, code := range sources {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			reg := ir.BlockRegistry{"A": {Name: "A", Code: code}}

			_, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
			require.Error(t, err)
			assert.Equal(t, ErrCodeModuleLoad, Code(err))

			var le *module.LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, "./C.vue", le.Specifier)
		})
	}
}

func TestLoadBlock_CachesEachBlockOnce(t *testing.T) {
	f := newFixture()
	reg := twoLevel()
	ctx := context.Background()

	_, err := f.engine.LoadBlock(ctx, reg["A"], reg)
	require.NoError(t, err)
	first := f.engine.Cache().Snapshot()
	published := f.table.Len()

	_, err = f.engine.LoadBlock(ctx, reg["A"], reg)
	require.NoError(t, err)

	assert.Equal(t, 1, f.compiler.count("A"))
	assert.Equal(t, 1, f.compiler.count("B"))
	assert.Equal(t, first, f.engine.Cache().Snapshot(), "references are stable")
	assert.Equal(t, published, f.table.Len(), "nothing republished")
}

func TestCompile_ChildCachedBeforeParent(t *testing.T) {
	f := newFixture()
	reg := twoLevel()
	ctx := context.Background()

	refB, err := f.engine.Compile(ctx, reg["B"], reg)
	require.NoError(t, err)

	refA, err := f.engine.Compile(ctx, reg["A"], reg)
	require.NoError(t, err)

	assert.Equal(t, 1, f.compiler.count("B"))
	assert.NotEqual(t, refA, refB)

	resolved, err := f.engine.Resolve(ctx, reg["A"], reg)
	require.NoError(t, err)
	assert.Contains(t, resolved, "from '"+string(refB)+"'")
}

func TestResolve_ReplacesEveryOccurrence(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: "<script>\nimport B from './B.vue'\nexport const again = './B.vue'\n</script>\n", ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: leafC},
	}

	resolved, err := f.engine.Resolve(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	assert.NotContains(t, resolved, "./B.vue")
	assert.Equal(t, 2, strings.Count(resolved, "blob:t/3"))
}

func TestResolve_DeepChain(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: "<script>\nimport B from './B.vue'\nexport default {}\n</script>\n", ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: "<script>\nimport C from './C.vue'\nexport default {}\n</script>\n", ChildBlocks: []string{"C"}},
		"C": {Name: "C", Code: leafC},
	}

	out, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	comp := out.(*module.Component)
	assert.Equal(t, 3, comp.Count())
	require.Len(t, comp.Children, 1)
	require.Len(t, comp.Children[0].Children, 1)

	refC, _ := f.engine.Cache().Lookup("C")
	refB, _ := f.engine.Cache().Lookup("B")
	assert.Equal(t, ir.Reference("blob:t/3"), refC, "deepest child compiles first")
	assert.Equal(t, ir.Reference("blob:t/6"), refB)
	assert.Equal(t, refC, comp.Children[0].Children[0].Reference)
}

func TestResolve_DeterministicAcrossEngines(t *testing.T) {
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: "<script>\nimport B from './B.vue'\nimport C from './C.vue'\nexport default {}\n</script>\n", ChildBlocks: []string{"B", "C"}},
		"B": {Name: "B", Code: leafB},
		"C": {Name: "C", Code: leafC},
	}

	run := func() (string, map[string]ir.Reference) {
		f := newFixture()
		resolved, err := f.engine.Resolve(context.Background(), reg["A"], reg)
		require.NoError(t, err)
		return resolved, f.engine.Cache().Snapshot()
	}

	r1, c1 := run()
	r2, c2 := run()
	assert.Equal(t, r1, r2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, ir.Reference("blob:t/3"), c1["B"], "children compile in declaration order")
	assert.Equal(t, ir.Reference("blob:t/6"), c1["C"])
}

func TestResolve_DoesNotMutateRegistry(t *testing.T) {
	f := newFixture()
	reg := twoLevel()
	before := reg["A"]

	_, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	assert.Equal(t, before.Code, reg["A"].Code)
	assert.Contains(t, reg["A"].Code, "./B.vue")
	assert.Equal(t, []string{"B"}, reg["A"].ChildBlocks)
}

func TestResolve_ChildNameDefaultsToKey(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
		"B": {Code: leafC},
	}

	_, err := f.engine.Compile(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	_, ok := f.engine.Cache().Lookup("B")
	assert.True(t, ok)
}

func TestLoadBlock_ChildParseErrorIsolated(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: brokenB},
	}

	_, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.Equal(t, ErrCodeParse, Code(err))

	var pe *compiler.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "B", pe.Block)

	assert.Equal(t, 0, f.engine.Cache().Len(), "neither block is cached")
	assert.Equal(t, 0, f.compiler.count("A"))
	assert.Equal(t, 0, f.table.Len())

	// A fixed registry succeeds on the same engine.
	reg["B"] = ir.BlockDefinition{Name: "B", Code: leafB}
	_, err = f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)
	assert.Equal(t, 2, f.engine.Cache().Len())
}

func TestLoadBlock_UnknownChild(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: parentA, ChildBlocks: []string{"Missing"}},
	}

	_, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.Error(t, err)

	var ue *UnknownBlockError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "A", ue.Parent)
	assert.Equal(t, "Missing", ue.Name)
	assert.Equal(t, `block "A" references unknown block "Missing"`, err.Error())
	assert.Equal(t, ErrCodeUnknownBlock, Code(err))

	_, ok := f.engine.Cache().Lookup("A")
	assert.False(t, ok)
}

func TestLoadBlock_Cycle(t *testing.T) {
	tests := []struct {
		name string
		reg  ir.BlockRegistry
		root string
		path []string
	}{
		{
			name: "self",
			reg: ir.BlockRegistry{
				"A": {Name: "A", Code: parentA, ChildBlocks: []string{"A"}},
			},
			root: "A",
			path: []string{"A", "A"},
		},
		{
			name: "two blocks",
			reg: ir.BlockRegistry{
				"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
				"B": {Name: "B", Code: leafC, ChildBlocks: []string{"A"}},
			},
			root: "A",
			path: []string{"A", "B", "A"},
		},
		{
			name: "below the root",
			reg: ir.BlockRegistry{
				"R": {Name: "R", Code: leafC, ChildBlocks: []string{"A"}},
				"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
				"B": {Name: "B", Code: leafC, ChildBlocks: []string{"A"}},
			},
			root: "R",
			path: []string{"A", "B", "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.engine.LoadBlock(context.Background(), tt.reg[tt.root], tt.reg)
			require.Error(t, err)

			var ce *CycleError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.path, ce.Path)
			assert.Equal(t, ErrCodeCycle, Code(err))
			assert.Equal(t, 0, f.engine.Cache().Len())
		})
	}
}

func TestLoadBlock_ReleasedModule(t *testing.T) {
	f := newFixture()
	reg := twoLevel()
	ctx := context.Background()

	refB, err := f.engine.Compile(ctx, reg["B"], reg)
	require.NoError(t, err)
	require.NoError(t, f.table.Release(ctx, refB))

	_, err = f.engine.LoadBlock(ctx, reg["B"], reg)
	require.Error(t, err)

	var me *ModuleLoadError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, refB, me.Reference)
	assert.True(t, errors.Is(err, module.ErrReleased))
	assert.Equal(t, ErrCodeModuleLoad, Code(err))
}

func TestLoadBlock_InvokerError(t *testing.T) {
	boom := errors.New("entry failed")
	f := newFixture(WithInvoker(func(context.Context, *module.Module) (any, error) {
		return nil, boom
	}))
	reg := twoLevel()

	_, err := f.engine.LoadBlock(context.Background(), reg["B"], reg)
	require.Error(t, err)
	assert.True(t, IsModuleLoadError(err))
	assert.True(t, errors.Is(err, boom))

	_, ok := f.engine.Cache().Lookup("B")
	assert.True(t, ok, "a failed invocation keeps the compiled reference")
}

func TestLoadBlock_CustomInvoker(t *testing.T) {
	f := newFixture(WithInvoker(func(_ context.Context, m *module.Module) (any, error) {
		return m.Reference, nil
	}))
	reg := twoLevel()

	out, err := f.engine.LoadBlock(context.Background(), reg["B"], reg)
	require.NoError(t, err)
	assert.Equal(t, ir.Reference("blob:t/3"), out)
}

func TestLoadBlock_Concurrent(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
		"X": {Name: "X", Code: "<script>\nimport B from './B.vue'\nexport default {}\n</script>\n", ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: leafB},
	}

	const goroutines = 20
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root := reg["A"]
			if i%2 == 1 {
				root = reg["X"]
			}
			if _, err := f.engine.LoadBlock(context.Background(), root, reg); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failures.Load())
	for _, name := range []string{"A", "X", "B"} {
		assert.Equal(t, 1, f.compiler.count(name), name)
	}
	assert.Equal(t, 9, f.table.Len(), "three fragments per block")
	assert.Len(t, f.doc.Sheets(), 1, "one sheet for B")
}

func TestLoadBlock_CanceledContext(t *testing.T) {
	f := newFixture()
	reg := twoLevel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.LoadBlock(ctx, reg["A"], reg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, ErrCodeInternal, Code(err))
}

func TestWarm(t *testing.T) {
	f := newFixture()
	reg := ir.BlockRegistry{
		"A": {Name: "A", Code: parentA, ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: leafB},
		"C": {Name: "C", Code: leafC},
	}

	require.NoError(t, f.engine.Warm(context.Background(), reg))
	assert.Equal(t, 3, f.engine.Cache().Len())
	assert.Equal(t, 1, f.compiler.count("B"))
}

func TestWarm_Selected(t *testing.T) {
	f := newFixture()
	reg := twoLevel()
	reg["C"] = ir.BlockDefinition{Name: "C", Code: leafC}

	require.NoError(t, f.engine.Warm(context.Background(), reg, "A"))
	assert.Equal(t, 2, f.engine.Cache().Len())
	_, ok := f.engine.Cache().Lookup("C")
	assert.False(t, ok)

	err := f.engine.Warm(context.Background(), reg, "Nope")
	var ue *UnknownBlockError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, `unknown block "Nope"`, err.Error())
}

type memRecorder struct {
	mu       sync.Mutex
	compiles []ir.CompileRecord
	links    []ir.LinkRecord
	fail     bool
}

func (r *memRecorder) RecordCompile(_ context.Context, rec ir.CompileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("recorder down")
	}
	r.compiles = append(r.compiles, rec)
	return nil
}

func (r *memRecorder) RecordLink(_ context.Context, rec ir.LinkRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("recorder down")
	}
	r.links = append(r.links, rec)
	return nil
}

func TestRecorder(t *testing.T) {
	rec := &memRecorder{}
	f := newFixture(WithRecorder(rec))
	reg := twoLevel()

	_, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)

	hashB, err := ir.BlockHash(reg["B"])
	require.NoError(t, err)

	require.Len(t, rec.compiles, 2)
	assert.Equal(t, ir.CompileRecord{
		Seq:        1,
		Block:      "B",
		ID:         "id00000001",
		ScopeID:    "data-v-id00000001",
		Reference:  "blob:t/3",
		Script:     "blob:t/1",
		Template:   "blob:t/2",
		BlockHash:  hashB,
		SourceHash: ir.SourceHash(leafB),
		CSS:        ".b[data-v-id00000001] { color: red; }\n",
	}, rec.compiles[0])

	require.Len(t, rec.links, 1)
	assert.Equal(t, ir.LinkRecord{Seq: 2, Parent: "A", Child: "B", Reference: "blob:t/3"}, rec.links[0])

	// The parent is recorded with its substituted source.
	assert.Equal(t, int64(3), rec.compiles[1].Seq)
	assert.Equal(t, "A", rec.compiles[1].Block)
	assert.NotEqual(t, ir.SourceHash(parentA), rec.compiles[1].SourceHash)
	hashA, err := ir.BlockHash(reg["A"])
	require.NoError(t, err)
	assert.NotEqual(t, hashA, rec.compiles[1].BlockHash)
	assert.NotEmpty(t, rec.compiles[1].BlockHash)
	assert.Equal(t, int64(3), f.engine.Clock().Current())
}

func TestRecorder_FailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(WithRecorder(&memRecorder{fail: true}))
	reg := twoLevel()

	_, err := f.engine.LoadBlock(context.Background(), reg["A"], reg)
	require.NoError(t, err)
	assert.Equal(t, 2, f.engine.Cache().Len())
}

func TestWithCache_Shared(t *testing.T) {
	shared := NewCache()
	f1 := newFixture(WithCache(shared))
	reg := twoLevel()

	_, err := f1.engine.Compile(context.Background(), reg["B"], reg)
	require.NoError(t, err)

	e2 := New(f1.table, f1.compiler, WithCache(shared))
	_, err = e2.Compile(context.Background(), reg["B"], reg)
	require.NoError(t, err)
	assert.Equal(t, 1, f1.compiler.count("B"))
	assert.Same(t, shared, e2.Cache())
	assert.Equal(t, f1.table, e2.Host())
}

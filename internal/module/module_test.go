package module

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenmine/tiny-engine/internal/ir"
)

func TestParseImports(t *testing.T) {
	src := "import script from 'blob:x/1';\n" +
		"import { render } from \"blob:x/2\";\n" +
		"  import { ref, computed } from 'vue'\n" +
		"const s = \"import fake from 'nope'\";\n" +
		"export default script;\n"

	imports, err := ParseImports(src)
	require.NoError(t, err)
	require.Len(t, imports, 3)

	assert.Equal(t, "script", imports[0].Clause)
	assert.Equal(t, "blob:x/1", imports[0].Specifier)
	assert.Equal(t, "{ render }", imports[1].Clause)
	assert.Equal(t, "blob:x/2", imports[1].Specifier)
	assert.Equal(t, "{ ref, computed }", imports[2].Clause)
	assert.Equal(t, "vue", imports[2].Specifier)
}

func TestParseImports_StatementForms(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		clause    string
		specifier string
		export    bool
	}{
		{"split across lines", "import C\n  from './C.vue'\n", "C", "./C.vue", false},
		{"no whitespace", "import{C}from'./C.vue'", "{C}", "./C.vue", false},
		{"re-export", "export { default as C } from './C.vue'\n", "{ default as C }", "./C.vue", true},
		{"namespace re-export", "export * as ns from \"./C.vue\";", "* as ns", "./C.vue", true},
		{"side effect", "import './reset.css';", "", "./reset.css", false},
		{"comment in clause", "import /* x */ { a,\n b } from 'm'", "{ a, b }", "m", false},
		{"binding named from", "import from from 'm'", "from", "m", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imports, err := ParseImports(tt.src)
			require.NoError(t, err)
			require.Len(t, imports, 1)
			assert.Equal(t, tt.clause, imports[0].Clause)
			assert.Equal(t, tt.specifier, imports[0].Specifier)
			assert.Equal(t, tt.export, imports[0].Export)
		})
	}
}

func TestParseImports_SkipsNonStatements(t *testing.T) {
	src := "const m = import('./lazy.js');\n" +
		"const u = import.meta.url;\n" +
		"export const x = 1;\n" +
		"export { x as y }\n" +
		"import z from 'blob:x/9'\n" +
		"const r = /import a from 'b'/;\n" +
		"// import c from 'd'\n"

	imports, err := ParseImports(src)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "z", imports[0].Clause)
	assert.Equal(t, "blob:x/9", imports[0].Specifier)
}

func TestParseImports_LexError(t *testing.T) {
	_, err := ParseImports("import a from 'unterminated\n")
	assert.ErrorContains(t, err, "scan imports")
}

func TestSpecifierClasses(t *testing.T) {
	assert.True(t, IsReference("blob:tiny-engine/1"))
	assert.False(t, IsReference("./B.vue"))

	assert.True(t, IsRelative("./B.vue"))
	assert.True(t, IsRelative("../B.vue"))
	assert.True(t, IsRelative("/B.vue"))
	assert.False(t, IsRelative("vue"))
	assert.False(t, IsRelative("blob:tiny-engine/1"))
}

func TestLink_ResolvesImportGraph(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable(WithRefGenerator(NewSequentialRefs("t")))

	leaf, err := tbl.Publish(ctx, "export const x = 1;\n")
	require.NoError(t, err)
	mid, err := tbl.Publish(ctx, "import { x } from '"+string(leaf)+"';\nimport { h } from 'vue';\n")
	require.NoError(t, err)
	root, err := tbl.Publish(ctx, "import m from '"+string(mid)+"';\nimport { x } from '"+string(leaf)+"';\n")
	require.NoError(t, err)

	m, err := tbl.Load(ctx, root)
	require.NoError(t, err)

	require.Len(t, m.Imports, 2)
	midMod := m.Imports[0].Module
	require.NotNil(t, midMod)
	assert.Equal(t, mid, midMod.Reference)

	// Shared dependency resolves to the same Module within one load.
	assert.Same(t, m.Imports[1].Module, midMod.Imports[0].Module)

	// Bare specifier is kept as an external.
	assert.True(t, midMod.Imports[1].External())
	assert.Equal(t, "vue", midMod.Imports[1].Specifier)
}

func TestLink_ImportCycle(t *testing.T) {
	sources := map[ir.Reference]string{
		"blob:c/1": "import b from 'blob:c/2';\n",
		"blob:c/2": "import a from 'blob:c/1';\n",
	}
	fetch := func(_ context.Context, ref ir.Reference) (string, error) {
		s, ok := sources[ref]
		if !ok {
			return "", ErrNotFound
		}
		return s, nil
	}

	m, err := Link(context.Background(), "blob:c/1", fetch)
	require.NoError(t, err)
	assert.Same(t, m, m.Imports[0].Module.Imports[0].Module)
}

func TestLoad_UnknownReference(t *testing.T) {
	tbl := NewTable()

	_, err := tbl.Load(context.Background(), "blob:tiny-engine/missing")
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ir.Reference("blob:tiny-engine/missing"), le.Reference)
	assert.Empty(t, le.Specifier)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_MissingDependencyNamesImporter(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()

	root, err := tbl.Publish(ctx, "import dep from 'blob:tiny-engine/gone';\n")
	require.NoError(t, err)

	_, err = tbl.Load(ctx, root)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, root, le.Reference)
	assert.Equal(t, "blob:tiny-engine/gone", le.Specifier)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_RelativeSpecifierFails(t *testing.T) {
	sources := []string{
		"import B from './B.vue';\n",
		"import B\n  from './B.vue'\n",
		"import{B}from'./B.vue'",
		"export { default as B } from './B.vue'\n",
	}

	for _, src := range sources {
		ctx := context.Background()
		tbl := NewTable()

		root, err := tbl.Publish(ctx, src)
		require.NoError(t, err)

		_, err = tbl.Load(ctx, root)

		var le *LoadError
		require.True(t, errors.As(err, &le), src)
		assert.Equal(t, "./B.vue", le.Specifier, src)
	}
}

func TestLoad_SplitImportLinksDependency(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable(WithRefGenerator(NewSequentialRefs("t")))

	leaf, err := tbl.Publish(ctx, "export default {};\n")
	require.NoError(t, err)
	root, err := tbl.Publish(ctx, "import Leaf\n  from '"+string(leaf)+"'\n")
	require.NoError(t, err)

	m, err := tbl.Load(ctx, root)
	require.NoError(t, err)
	require.Len(t, m.Imports, 1)
	require.NotNil(t, m.Imports[0].Module)
	assert.Equal(t, leaf, m.Imports[0].Module.Reference)
}

func TestLoad_CanceledContext(t *testing.T) {
	tbl := NewTable()
	ref, err := tbl.Publish(context.Background(), "export default 1;\n")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tbl.Load(ctx, ref)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadError_Message(t *testing.T) {
	err := &LoadError{Reference: "blob:x/1", Specifier: "./B.vue", Err: errors.New("boom")}
	assert.Equal(t, `load blob:x/1: import "./B.vue": boom`, err.Error())

	err = &LoadError{Reference: "blob:x/1", Err: ErrReleased}
	assert.Equal(t, "load blob:x/1: reference released", err.Error())
}

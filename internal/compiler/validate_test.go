package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenmine/tiny-engine/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	registry := ir.BlockRegistry{
		"A": {Name: "A", Code: "<template><B/></template>\n<script>\nimport B from './B.vue'\n</script>", ChildBlocks: []string{"B"}},
		"B": {Name: "B", Code: "<template>hi</template>"},
	}

	assert.Empty(t, Validate(registry))
}

func TestValidate_EmptyRegistry(t *testing.T) {
	errs := Validate(ir.BlockRegistry{})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrEmptyRegistry, errs[0].Code)
	assert.Equal(t, "[E100] blocks: registry contains no blocks", errs[0].Error())
}

func TestValidate_BlockErrors(t *testing.T) {
	tests := []struct {
		name  string
		block ir.BlockDefinition
		key   string
		want  []string
	}{
		{
			name:  "invalid name",
			key:   "a/b",
			block: ir.BlockDefinition{Name: "a/b", Code: "<template>x</template>"},
			want:  []string{ErrInvalidBlockName},
		},
		{
			name:  "name mismatch",
			key:   "A",
			block: ir.BlockDefinition{Name: "Other", Code: "<template>x</template>"},
			want:  []string{ErrNameMismatch},
		},
		{
			name:  "empty code",
			key:   "A",
			block: ir.BlockDefinition{Name: "A", Code: "  "},
			want:  []string{ErrEmptyCode},
		},
		{
			name:  "syntax",
			key:   "A",
			block: ir.BlockDefinition{Name: "A", Code: "<template><div>"},
			want:  []string{ErrBlockSyntax},
		},
		{
			name: "unknown and duplicate child",
			key:  "A",
			block: ir.BlockDefinition{
				Name:        "A",
				Code:        "<script>import X from './X.vue'</script>",
				ChildBlocks: []string{"X", "X"},
			},
			want: []string{ErrUnknownChild, ErrDuplicateChild},
		},
		{
			name: "undeclared import",
			key:  "A",
			block: ir.BlockDefinition{
				Name: "A",
				Code: "<script>import Y from './Y.vue'</script>",
			},
			want: []string{ErrUndeclaredChild},
		},
		{
			name: "unreferenced child",
			key:  "A",
			block: ir.BlockDefinition{
				Name:        "A",
				Code:        "<template>x</template>",
				ChildBlocks: []string{"Y"},
			},
			want: []string{ErrUnreferencedChild},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := ir.BlockRegistry{
				tt.key: tt.block,
				"Y":    {Name: "Y", Code: "<template>y</template>"},
			}
			errs := Validate(registry)
			assert.Equal(t, tt.want, codes(errs))
			for _, e := range errs {
				assert.Equal(t, tt.key, e.Block)
			}
		})
	}
}

func TestValidate_SyntaxErrorLine(t *testing.T) {
	registry := ir.BlockRegistry{
		"A": {Name: "A", Code: "<template>a</template>\n<template>b</template>"},
	}

	errs := Validate(registry)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Line)
	assert.Equal(t, "[E104] A line 2: code: single file component can contain only one <template> element", errs[0].Error())
}

func TestValidate_OrderedByBlock(t *testing.T) {
	registry := ir.BlockRegistry{
		"C": {Name: "C", Code: ""},
		"A": {Name: "A", Code: ""},
		"B": {Name: "B", Code: ""},
	}

	errs := Validate(registry)
	require.Len(t, errs, 3)
	assert.Equal(t, "A", errs[0].Block)
	assert.Equal(t, "B", errs[1].Block)
	assert.Equal(t, "C", errs[2].Block)
}

package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockDefinitionFileName(t *testing.T) {
	assert.Equal(t, "Card.vue", BlockDefinition{Name: "Card"}.FileName())
	assert.Equal(t, "blocks/Card.vue", BlockDefinition{Name: "Card", File: "blocks/Card.vue"}.FileName())
}

func TestWithCodeDoesNotAlias(t *testing.T) {
	orig := BlockDefinition{Name: "A", Code: "old", ChildBlocks: []string{"B"}}
	copied := orig.WithCode("new")
	copied.ChildBlocks[0] = "Z"

	assert.Equal(t, "old", orig.Code)
	assert.Equal(t, "new", copied.Code)
	assert.Equal(t, []string{"B"}, orig.ChildBlocks)
}

func TestWithCodeKeepsNilChildren(t *testing.T) {
	copied := BlockDefinition{Name: "A"}.WithCode("x")
	assert.Nil(t, copied.ChildBlocks)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := BlockRegistry{
		"c": {Name: "c"},
		"a": {Name: "a"},
		"b": {Name: "b"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestChildPathAndKeys(t *testing.T) {
	assert.Equal(t, "./B.vue", ChildPath("B"))
	assert.Equal(t, ScopeID("data-v-abc"), ScopeIDFor("abc"))
	assert.Equal(t, "data-te-page-home", PageStyleKey("home"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "\u00e9", NormalizeName(" e\u0301 "))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("UserCard"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("a/b"))
	assert.Error(t, ValidateName("a'b"))
	assert.Error(t, ValidateName(" a"))
}

func TestChildImports(t *testing.T) {
	code := "import B from './B.vue'\n" +
		"import C from \"./C.vue\";\n" +
		"import again from './B.vue'\n" +
		"import deep from './nested/D.vue'\n" +
		"import { ref } from 'vue'\n"

	assert.Equal(t, []string{"B", "C"}, ChildImports(code))
	assert.Empty(t, ChildImports("export default {}"))
}

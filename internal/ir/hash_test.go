package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockHashDeterminism(t *testing.T) {
	b := BlockDefinition{Name: "A", Code: "<template>hi</template>", ChildBlocks: []string{"B"}}

	h1, err := BlockHash(b)
	require.NoError(t, err)
	h2, err := BlockHash(b)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "BlockHash must be deterministic")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func mustHash(t *testing.T, b BlockDefinition) string {
	t.Helper()
	h, err := BlockHash(b)
	require.NoError(t, err)
	return h
}

func TestBlockHashChangesWithInput(t *testing.T) {
	base := BlockDefinition{Name: "A", Code: "x", ChildBlocks: []string{"B"}}

	h := mustHash(t, base)
	assert.NotEqual(t, h, mustHash(t, BlockDefinition{Name: "A2", Code: "x", ChildBlocks: []string{"B"}}))
	assert.NotEqual(t, h, mustHash(t, BlockDefinition{Name: "A", Code: "y", ChildBlocks: []string{"B"}}))
	assert.NotEqual(t, h, mustHash(t, BlockDefinition{Name: "A", Code: "x", ChildBlocks: []string{"C"}}))
	assert.NotEqual(t, h, mustHash(t, BlockDefinition{Name: "A", Code: "x", ChildBlocks: []string{"B"}, File: "Other.vue"}))
}

func TestBlockHashDefaultFile(t *testing.T) {
	implicit := BlockDefinition{Name: "A", Code: "x"}
	explicit := BlockDefinition{Name: "A", Code: "x", File: "A.vue"}
	assert.Equal(t, mustHash(t, implicit), mustHash(t, explicit))
}

func TestSourceHashDomainSeparated(t *testing.T) {
	assert.NotEqual(t, SourceHash("x"), hashWithDomain(DomainBlock, []byte("x")))
	assert.Equal(t, SourceHash("x"), SourceHash("x"))
}

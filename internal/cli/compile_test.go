package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeCompileResult(t *testing.T, out string) CompilationResult {
	t.Helper()
	var response struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response), out)
	require.Equal(t, "ok", response.Status)
	return response.Data
}

func TestCompileCommand_Text(t *testing.T) {
	dir := cardBlocks(t)

	out, _, err := execute(NewRootCommand(), "compile", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "Compiled 2 block(s)")
	assert.Contains(t, out, "Badge: blob:tiny-engine/")
	assert.Contains(t, out, "Card: blob:tiny-engine/")
	assert.Contains(t, out, "(data-v-")
}

func TestCompileCommand_JSON(t *testing.T) {
	dir := cardBlocks(t)

	out, _, err := execute(NewRootCommand(), "--format", "json", "compile", dir)
	require.NoError(t, err)

	result := decodeCompileResult(t, out)
	require.Len(t, result.Blocks, 2)

	// Children compile before their parents.
	badge, card := result.Blocks[0], result.Blocks[1]
	assert.Equal(t, "Badge", badge.Name)
	assert.Equal(t, "Card", card.Name)
	assert.Equal(t, "data-v-"+badge.ID, string(badge.ScopeID))
	assert.Empty(t, card.ScopeID)
	assert.NotEqual(t, badge.Reference, card.Reference)
	assert.Contains(t, result.CSS, ".badge[data-v-"+badge.ID+"]")
}

func TestCompileCommand_NamedBlock(t *testing.T) {
	dir := writeBlocks(t, map[string]string{
		"Card.vue":  cardVue,
		"Badge.vue": badgeVue,
		"Other.vue": "<template><p>other</p></template>\n",
	})

	out, _, err := execute(NewRootCommand(), "--format", "json", "compile", dir, "Card")
	require.NoError(t, err)

	result := decodeCompileResult(t, out)
	names := make([]string, 0, len(result.Blocks))
	for _, b := range result.Blocks {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"Badge", "Card"}, names)
}

func TestCompileCommand_OutputFiles(t *testing.T) {
	dir := cardBlocks(t)
	outDir := t.TempDir()
	jsonPath := filepath.Join(outDir, "result.json")
	cssPath := filepath.Join(outDir, "blocks.css")

	out, _, err := execute(NewRootCommand(), "compile", dir, "-o", jsonPath, "--css", cssPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote compile result to "+jsonPath)
	assert.Contains(t, out, "Wrote style document to "+cssPath)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Blocks, 2)

	css, err := os.ReadFile(cssPath)
	require.NoError(t, err)
	assert.Contains(t, string(css), ".badge[data-v-")
	assert.Equal(t, result.CSS, string(css))
}

func TestCompileCommand_NonexistentDir(t *testing.T) {
	out, _, err := execute(NewRootCommand(), "--format", "json", "compile", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E005", response.Error.Code)
}

func TestCompileCommand_EmptyDir(t *testing.T) {
	out, _, err := execute(NewRootCommand(), "compile", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, markFail+" Loading blocks failed")
	assert.Contains(t, out, "E003")
}

func TestCompileCommand_UnknownChild(t *testing.T) {
	dir := writeBlocks(t, map[string]string{"Parent.vue": ghostParentVue})

	out, _, err := execute(NewRootCommand(), "--format", "json", "compile", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.NotNil(t, response.Error)
	assert.Equal(t, "UNKNOWN_BLOCK", response.Error.Code)
	assert.Contains(t, response.Error.Message, "Ghost")
}

func TestCompileCommand_ParseError(t *testing.T) {
	dir := writeBlocks(t, map[string]string{"Broken.vue": brokenVue})

	out, _, err := execute(NewRootCommand(), "compile", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [PARSE_ERROR]")
}

func TestCompileCommand_OriginFlag(t *testing.T) {
	dir := cardBlocks(t)

	out, _, err := execute(NewRootCommand(), "--origin", "preview", "compile", dir, "Badge")
	require.NoError(t, err)
	assert.Contains(t, out, "Badge: blob:preview/")
}

func TestCompileCommand_VerboseLogsToStderr(t *testing.T) {
	dir := cardBlocks(t)

	out, errOut, err := execute(NewRootCommand(), "-v", "--format", "json", "compile", dir)
	require.NoError(t, err)

	decodeCompileResult(t, out)
	assert.Contains(t, errOut, "Found 2 block file(s)")
	assert.Contains(t, errOut, "Compiling block: Card")
}

func TestCompileCommand_DatabaseAccumulates(t *testing.T) {
	dir := cardBlocks(t)
	db := filepath.Join(t.TempDir(), "blocks.db")

	for range 2 {
		out, _, err := execute(NewRootCommand(), "--db", db, "--format", "json", "compile", dir)
		require.NoError(t, err)
		// Each process compiles afresh; only its own compilations are reported.
		assert.Len(t, decodeCompileResult(t, out).Blocks, 2)
	}

	out, _, err := execute(NewRootCommand(), "--db", db, "--format", "json", "trace")
	require.NoError(t, err)

	var response struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, 4, response.Data.Stats.Compilations)
	assert.Equal(t, 2, response.Data.Stats.Links)
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeJSONFile(path, map[string]int{"a": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("{\n  \"a\": 1")))
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCommand_Text(t *testing.T) {
	dir := cardBlocks(t)

	out, _, err := execute(NewRootCommand(), "load", dir, "Card")
	require.NoError(t, err)

	assert.Contains(t, out, "Loaded Card: 2 component(s)")
	assert.Contains(t, out, "  Card.vue blob:tiny-engine/")
	assert.Contains(t, out, "    Badge.vue blob:tiny-engine/")
	assert.Contains(t, out, "[data-v-")
	assert.Contains(t, out, "Styles: ")
}

func TestLoadCommand_JSON(t *testing.T) {
	dir := cardBlocks(t)

	out, _, err := execute(NewRootCommand(), "--format", "json", "load", dir, "Card")
	require.NoError(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   LoadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response), out)
	assert.Equal(t, "ok", response.Status)

	result := response.Data
	assert.Equal(t, "Card", result.Block)
	assert.Equal(t, 2, result.Components)
	require.NotNil(t, result.Root)
	assert.Equal(t, "Card.vue", result.Root.File)
	assert.Empty(t, result.Root.ScopeID)
	require.Len(t, result.Root.Children, 1)

	badge := result.Root.Children[0]
	assert.Equal(t, "Badge.vue", badge.File)
	assert.NotEmpty(t, badge.ScopeID)
	assert.Len(t, result.Styles, 1)
	assert.Contains(t, result.CSS, ".badge["+string(badge.ScopeID)+"]")
}

func TestLoadCommand_PageStyles(t *testing.T) {
	dir := cardBlocks(t)
	cssPath := filepath.Join(t.TempDir(), "home.css")
	require.NoError(t, os.WriteFile(cssPath, []byte("body { margin: 0; }"), 0644))

	out, _, err := execute(NewRootCommand(), "--format", "json", "load", dir, "Card", "--page", "home", "--page-css", cssPath)
	require.NoError(t, err)

	var response struct {
		Data LoadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Contains(t, response.Data.Styles, "data-te-page-home")
	assert.Len(t, response.Data.Styles, 2)
	assert.Contains(t, response.Data.CSS, "body { margin: 0; }")
}

func TestLoadCommand_PageCSSRequiresPage(t *testing.T) {
	dir := cardBlocks(t)

	_, _, err := execute(NewRootCommand(), "load", dir, "Card", "--page-css", "home.css")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--page-css requires --page")
}

func TestLoadCommand_MissingPageCSSFile(t *testing.T) {
	dir := cardBlocks(t)

	_, _, err := execute(NewRootCommand(), "load", dir, "Card", "--page", "home", "--page-css", filepath.Join(t.TempDir(), "nope.css"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadCommand_UnknownBlock(t *testing.T) {
	dir := cardBlocks(t)

	out, _, err := execute(NewRootCommand(), "--format", "json", "load", dir, "Nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	require.NotNil(t, response.Error)
	assert.Equal(t, "UNKNOWN_BLOCK", response.Error.Code)
	assert.Equal(t, []any{"Badge", "Card"}, response.Error.Details.(map[string]any)["blocks"])
}

func TestLoadCommand_UnknownChild(t *testing.T) {
	dir := writeBlocks(t, map[string]string{"Parent.vue": ghostParentVue})

	out, _, err := execute(NewRootCommand(), "load", dir, "Parent")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [UNKNOWN_BLOCK]")
	assert.Contains(t, out, `"Ghost"`)
}

func TestLoadCommand_Args(t *testing.T) {
	_, _, err := execute(NewRootCommand(), "load", cardBlocks(t))
	require.Error(t, err)
}

package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cycleAVue = "<template><B /></template>\n" +
		"<script>\nimport B from './B.vue'\nexport default { components: { B } }\n</script>\n"
	cycleBVue = "<template><A /></template>\n" +
		"<script>\nimport A from './A.vue'\nexport default { components: { A } }\n</script>\n"
)

func TestValidateCommand_Valid(t *testing.T) {
	out, _, err := execute(NewRootCommand(), "validate", cardBlocks(t))
	require.NoError(t, err)
	assert.Contains(t, out, markOK+" All 2 block(s) valid")
	assert.NotContains(t, out, "warning:")
}

func TestValidateCommand_JSON(t *testing.T) {
	out, _, err := execute(NewRootCommand(), "--format", "json", "validate", cardBlocks(t))
	require.NoError(t, err)

	var response struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response), out)
	assert.Equal(t, "ok", response.Status)
	assert.True(t, response.Data.Valid)
	assert.Equal(t, 2, response.Data.Blocks)
	assert.Empty(t, response.Data.Errors)
}

func TestValidateCommand_CycleIsWarning(t *testing.T) {
	dir := writeBlocks(t, map[string]string{"A.vue": cycleAVue, "B.vue": cycleBVue})

	out, _, err := execute(NewRootCommand(), "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: Block cycle detected: A -> B -> A")
	assert.Contains(t, out, markOK+" All 2 block(s) valid")
}

func TestValidateCommand_UnknownChild(t *testing.T) {
	dir := writeBlocks(t, map[string]string{"Parent.vue": ghostParentVue})

	out, _, err := execute(NewRootCommand(), "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, markFail+" Validation failed")
	assert.Contains(t, out, "E110: unknown child block \"Ghost\"")
}

func TestValidateCommand_SyntaxErrorJSON(t *testing.T) {
	dir := writeBlocks(t, map[string]string{"Broken.vue": brokenVue, "Badge.vue": badgeVue})

	out, _, err := execute(NewRootCommand(), "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response), out)
	assert.Equal(t, "error", response.Status)
	require.NotNil(t, response.Error)
	assert.Equal(t, "E104", response.Error.Code)
	assert.False(t, response.Data.Valid)
	require.NotEmpty(t, response.Data.Errors)

	first := response.Data.Errors[0]
	assert.Equal(t, "E104", first.Code)
	assert.Equal(t, "Broken", first.Block)
	assert.Equal(t, 2, first.Line)
}

func TestValidateCommand_ManifestDeclaredChildren(t *testing.T) {
	dir := writeBlocks(t, map[string]string{
		"blocks.yaml": "blocks:\n  Card:\n    childBlocks: [Badge, Extra]\n",
		"Card.vue":    cardVue,
		"Badge.vue":   badgeVue,
		"Extra.vue":   "<template><i /></template>\n",
	})

	out, _, err := execute(NewRootCommand(), "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "E113")
}

func TestValidateCommand_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
		code string
	}{
		{"missing dir", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") }, "E005"},
		{"empty dir", func(t *testing.T) string { return t.TempDir() }, "E003"},
		{"engine too new", func(t *testing.T) string {
			return writeBlocks(t, map[string]string{"blocks.yaml": "engine: v9.0.0\n", "A.vue": badgeVue})
		}, "E008"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(NewRootCommand(), "validate", tt.dir(t))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestValidateBlocksDir(t *testing.T) {
	result, err := ValidateBlocksDir(cardBlocks(t))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Blocks)

	_, err = ValidateBlocksDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

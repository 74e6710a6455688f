package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const (
	cardVue = "<template>\n  <div class=\"card\"><Badge /></div>\n</template>\n\n" +
		"<script>\nimport Badge from './Badge.vue'\nexport default { components: { Badge } }\n</script>\n"
	badgeVue = "<template><span class=\"badge\">new</span></template>\n\n" +
		"<style scoped>\n.badge { color: red; }\n</style>\n"
	ghostParentVue = "<template><Ghost /></template>\n" +
		"<script>\nimport Ghost from './Ghost.vue'\nexport default { components: { Ghost } }\n</script>\n"
	brokenVue = "<script>a</script>\n<script>b</script>\n"
)

// writeBlocks creates a block directory holding files (name -> source).
func writeBlocks(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func cardBlocks(t *testing.T) string {
	return writeBlocks(t, map[string]string{
		"Card.vue":  cardVue,
		"Badge.vue": badgeVue,
	})
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

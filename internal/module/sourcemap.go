package module

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
)

const sourceMapPrefix = "//# sourceMappingURL=data:application/json;base64,"

// InlineSourceMap appends m to code as an inline source map comment.
// A nil map returns code unchanged.
func InlineSourceMap(code string, m *ir.SourceMap) (string, error) {
	if m == nil {
		return code, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode source map: %w", err)
	}
	var b strings.Builder
	b.Grow(len(code) + len(sourceMapPrefix) + base64.StdEncoding.EncodedLen(len(data)) + 1)
	b.WriteString(code)
	if code != "" && !strings.HasSuffix(code, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(sourceMapPrefix)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}

// ExtractSourceMap decodes the last inline source map comment in code.
// Returns nil, nil when code carries no inline map.
func ExtractSourceMap(code string) (*ir.SourceMap, error) {
	i := strings.LastIndex(code, sourceMapPrefix)
	if i < 0 {
		return nil, nil
	}
	payload := code[i+len(sourceMapPrefix):]
	if nl := strings.IndexByte(payload, '\n'); nl >= 0 {
		payload = payload[:nl]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode source map: %w", err)
	}
	var m ir.SourceMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode source map: %w", err)
	}
	return &m, nil
}

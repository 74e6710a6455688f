package sfc

import (
	"fmt"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
)

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// lineMap records, for each generated line, the zero-based source line it was
// copied from, or -1 for synthetic lines.
type lineMap struct {
	lines   []string
	origins []int
}

func (m *lineMap) emit(line string, origin int) {
	m.lines = append(m.lines, line)
	m.origins = append(m.origins, origin)
}

func (m *lineMap) synthetic(line string) {
	m.emit(line, -1)
}

func (m *lineMap) code() string {
	return strings.Join(m.lines, "\n") + "\n"
}

// sourceMap builds a version 3 map with one segment per mapped line,
// always at column zero of both generated and original text.
func (m *lineMap) sourceMap(source, content string) *ir.SourceMap {
	var b strings.Builder
	prevLine := 0
	for i, origin := range m.origins {
		if i > 0 {
			b.WriteByte(';')
		}
		if origin < 0 {
			continue
		}
		// generated column, source index, source line delta, source column
		writeVLQ(&b, 0)
		writeVLQ(&b, 0)
		writeVLQ(&b, origin-prevLine)
		writeVLQ(&b, 0)
		prevLine = origin
	}
	return &ir.SourceMap{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []string{content},
		Names:          []string{},
		Mappings:       b.String(),
	}
}

func writeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		b.WriteByte(base64Digits[digit])
		if u == 0 {
			return
		}
	}
}

// DecodeMappings decodes a mappings string into per-line segments.
// Each segment is the list of its (delta-decoded, absolute) fields.
func DecodeMappings(mappings string) ([][][]int, error) {
	var out [][][]int
	var state [5]int
	for _, line := range strings.Split(mappings, ";") {
		state[0] = 0
		var segs [][]int
		if line != "" {
			for _, seg := range strings.Split(line, ",") {
				fields, err := decodeVLQs(seg)
				if err != nil {
					return nil, err
				}
				abs := make([]int, len(fields))
				for i, f := range fields {
					state[i] += f
					abs[i] = state[i]
				}
				segs = append(segs, abs)
			}
		}
		out = append(out, segs)
	}
	return out, nil
}

func decodeVLQs(s string) ([]int, error) {
	var (
		out   []int
		value int
		shift uint
	)
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base64Digits, s[i])
		if digit < 0 {
			return nil, fmt.Errorf("invalid base64 digit %q in mappings", s[i])
		}
		value += (digit & 31) << shift
		if digit&32 != 0 {
			shift += 5
			continue
		}
		if value&1 == 1 {
			out = append(out, -(value >> 1))
		} else {
			out = append(out, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, fmt.Errorf("truncated VLQ segment %q", s)
	}
	if len(out) > 5 {
		return nil, fmt.Errorf("segment %q has %d fields", s, len(out))
	}
	return out, nil
}

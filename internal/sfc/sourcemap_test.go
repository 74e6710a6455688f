package sfc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVLQ(t *testing.T) {
	tests := []struct {
		v    int
		want string
	}{
		{0, "A"},
		{1, "C"},
		{-1, "D"},
		{15, "e"},
		{16, "gB"},
		{-16, "hB"},
		{1000, "w+B"},
	}

	for _, tt := range tests {
		var b strings.Builder
		writeVLQ(&b, tt.v)
		assert.Equal(t, tt.want, b.String(), "encode %d", tt.v)

		got, err := decodeVLQs(tt.want)
		require.NoError(t, err)
		assert.Equal(t, []int{tt.v}, got, "decode %s", tt.want)
	}
}

func TestLineMap(t *testing.T) {
	var m lineMap
	m.synthetic("header")
	m.emit("a", 3)
	m.emit("b", 1)
	m.synthetic("footer")

	assert.Equal(t, "header\na\nb\nfooter\n", m.code())

	sm := m.sourceMap("A.vue", "src")
	assert.Equal(t, 3, sm.Version)
	assert.Equal(t, ";AAGA;AAFA;", sm.Mappings)

	lines, err := DecodeMappings(sm.Mappings)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Nil(t, lines[0])
	assert.Equal(t, [][]int{{0, 0, 3, 0}}, lines[1])
	assert.Equal(t, [][]int{{0, 0, 1, 0}}, lines[2])
	assert.Nil(t, lines[3])
}

func TestDecodeMappings_Invalid(t *testing.T) {
	_, err := DecodeMappings("A!AA")
	assert.ErrorContains(t, err, "invalid base64 digit")

	_, err = DecodeMappings("g")
	assert.ErrorContains(t, err, "truncated")
}

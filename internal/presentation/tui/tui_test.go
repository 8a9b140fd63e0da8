package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v0.1.0\n")
	assert.Contains(t, buf.String(), "v0.1.0")
	assert.Contains(t, buf.String(), "|_|")
}

func TestRendererFor_NonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, IsTerminal(&buf))

	out, err := RendererFor(&buf)("# Title")
	require.NoError(t, err)
	assert.Equal(t, "# Title", out)
}

func TestNewRenderer(t *testing.T) {
	out, err := NewRenderer()("**bold**")
	require.NoError(t, err)
	assert.Contains(t, out, "bold")
}

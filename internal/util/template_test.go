package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_NoMarkers(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestRenderTemplate_Fields(t *testing.T) {
	out, err := RenderTemplate("{{upper .name}} has {{.count}} items{{if .missing}}!{{end}}", map[string]any{
		"name":  "planner",
		"count": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "PLANNER has 3 items", out)
}

func TestRenderTemplate_Helpers(t *testing.T) {
	out, err := RenderTemplate(`{{default "none" .x}} {{truncate 3 .s}}`, map[string]any{"s": "abcdef"})
	require.NoError(t, err)
	assert.Equal(t, "none abc", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{ .broken", nil)
	assert.Error(t, err)
}

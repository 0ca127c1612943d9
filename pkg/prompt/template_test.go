package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
)

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assistant.tmpl")
	err := os.WriteFile(path, []byte(content), 0o600)
	assert.NoError(t, err, "write template should succeed")
	return path
}

func TestTemplateMarketFuncs(t *testing.T) {
	path := writeTemplate(t, "{{ .Code }} at {{ price .Current }} ({{ pct .ChangePct }}, {{ trend .ChangePct }}), vol {{ vol .Volume }}")

	tpl, err := NewTemplate(path)
	assert.NoError(t, err, "NewTemplate should not error")

	out, err := tpl.Render(map[string]any{
		"Code":      "000001",
		"Current":   11.9,
		"ChangePct": 2.345,
		"Volume":    152340000.0,
	})
	assert.NoError(t, err, "Render should not error")
	assert.Equal(t, "000001 at 11.90 (+2.35%, up), vol 1.52亿", out)
}

func TestTemplateExtraFuncsOverride(t *testing.T) {
	path := writeTemplate(t, "{{ trend .V }} {{ shout .Word }}")

	tpl, err := NewTemplate(path, WithFuncs(template.FuncMap{
		"trend": func(float64) string { return "sideways" },
		"shout": strings.ToUpper,
	}))
	assert.NoError(t, err, "NewTemplate should not error")

	out, err := tpl.Render(map[string]any{"V": 1.0, "Word": "hold"})
	assert.NoError(t, err, "Render should not error")
	assert.Equal(t, "sideways HOLD", out, "extra funcs should win over built-ins")
}

func TestTemplateReload(t *testing.T) {
	path := writeTemplate(t, "v1")

	tpl, err := NewTemplate(path)
	assert.NoError(t, err, "NewTemplate should not error")

	out, err := tpl.Render(nil)
	assert.NoError(t, err, "Render should not error")
	assert.Equal(t, "v1", out, "initial render should be v1")

	digestV1 := tpl.Digest()
	assert.NotEmpty(t, digestV1, "digest should not be empty")

	err = os.WriteFile(path, []byte("v2"), 0o600)
	assert.NoError(t, err, "rewrite template should succeed")

	err = tpl.Reload()
	assert.NoError(t, err, "Reload should not error")

	out, err = tpl.Render(nil)
	assert.NoError(t, err, "Render after reload should not error")
	assert.Equal(t, "v2", out, "reloaded render should be v2")
	assert.NotEqual(t, digestV1, tpl.Digest(), "digest should change after reload")
}

func TestVolumeUnits(t *testing.T) {
	assert.Equal(t, "3500", Volume(3500))
	assert.Equal(t, "1.50万", Volume(15000))
	assert.Equal(t, "2.10亿", Volume(210000000))
	assert.Equal(t, "-1.20万", Volume(-12000))
}

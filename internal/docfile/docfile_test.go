package docfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/rconf/internal/docfile"
	"github.com/florianilch/rconf/internal/remoteconfig"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	want := remoteconfig.Document{
		"parameters": map[string]any{
			"welcome": map[string]any{"defaultValue": map[string]any{"value": "hi"}},
		},
	}

	files := map[string]string{
		"template.json": `{"parameters":{"welcome":{"defaultValue":{"value":"hi"}}}}`,
		"template.yaml": "parameters:\n  welcome:\n    defaultValue:\n      value: hi\n",
		"template.yml":  "parameters:\n  welcome:\n    defaultValue:\n      value: hi\n",
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))

			doc, err := docfile.Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, doc)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format docfile.Format
	}{
		{name: "json array", data: `[1,2]`, format: docfile.FormatJSON},
		{name: "json null", data: `null`, format: docfile.FormatJSON},
		{name: "json trailing data", data: `{} {}`, format: docfile.FormatJSON},
		{name: "json truncated", data: `{"a":`, format: docfile.FormatJSON},
		{name: "yaml sequence", data: "- a\n- b\n", format: docfile.FormatYAML},
		{name: "yaml empty", data: "", format: docfile.FormatYAML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := docfile.Decode([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestDecode_FormatsProduceSameShape(t *testing.T) {
	fromJSON, err := docfile.Decode([]byte(`{"parameters":{"a":{"defaultValue":{"value":"1"}}}}`), docfile.FormatJSON)
	require.NoError(t, err)
	fromYAML, err := docfile.Decode([]byte("parameters:\n  a:\n    defaultValue:\n      value: \"1\"\n"), docfile.FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
	assert.IsType(t, map[string]any{}, fromYAML["parameters"])
	assert.IsType(t, map[string]any{}, fromJSON["parameters"])
}

func TestDecode_ParameterValuesMustBeStrings(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  docfile.Format
		wantErr string
	}{
		{
			name:    "yaml integer default",
			data:    "parameters:\n  limit:\n    defaultValue:\n      value: 10\n",
			format:  docfile.FormatYAML,
			wantErr: "parameters.limit.defaultValue.value must be a string",
		},
		{
			name:    "yaml boolean conditional",
			data:    "parameters:\n  flag:\n    conditionalValues:\n      beta:\n        value: true\n",
			format:  docfile.FormatYAML,
			wantErr: "parameters.flag.conditionalValues.beta.value must be a string",
		},
		{
			name:    "json number in group",
			data:    `{"parameterGroups":{"g":{"parameters":{"p":{"defaultValue":{"value":1.5}}}}}}`,
			format:  docfile.FormatJSON,
			wantErr: "parameterGroups.g.parameters.p.defaultValue.value must be a string",
		},
		{
			name:   "quoted yaml scalar",
			data:   "parameters:\n  limit:\n    defaultValue:\n      value: \"10\"\n",
			format: docfile.FormatYAML,
		},
		{
			name:   "in-app default",
			data:   `{"parameters":{"p":{"defaultValue":{"useInAppDefault":true}}}}`,
			format: docfile.FormatJSON,
		},
		{
			name:   "numbers outside parameter values",
			data:   `{"version":{"versionNumber":3},"conditions":[{"name":"beta","expression":"true"}]}`,
			format: docfile.FormatJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := docfile.Decode([]byte(tt.data), tt.format)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := docfile.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]docfile.Format{"json": docfile.FormatJSON, "YAML": docfile.FormatYAML, "yml": docfile.FormatYAML} {
		got, err := docfile.ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := docfile.ParseFormat("toml")
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	res := remoteconfig.FetchResult{Version: "etag-1", Document: remoteconfig.Document{"parameters": map[string]any{}}}

	var compact bytes.Buffer
	require.NoError(t, docfile.Write(&compact, res, docfile.FormatJSON, false))
	assert.Equal(t, "{\"etag\":\"etag-1\",\"data\":{\"parameters\":{}}}\n", compact.String())

	var indented bytes.Buffer
	require.NoError(t, docfile.Write(&indented, res, docfile.FormatJSON, true))
	assert.JSONEq(t, compact.String(), indented.String())
	assert.Contains(t, indented.String(), "\n  \"etag\"")

	var yamlOut bytes.Buffer
	require.NoError(t, docfile.Write(&yamlOut, res, docfile.FormatYAML, false))
	assert.Equal(t, "etag: etag-1\ndata:\n  parameters: {}\n", yamlOut.String())
}

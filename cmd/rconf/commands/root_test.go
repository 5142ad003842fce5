package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/florianilch/rconf/internal/emulator"
	"github.com/florianilch/rconf/internal/remoteconfig"
)

const tokenVariable = "RCONF_COMMANDS_TEST_TOKEN"

// harness runs rconf commands against an in-process emulator with a static token.
type harness struct {
	t       *testing.T
	baseURL string
	environ []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	emu, err := emulator.New()
	require.NoError(t, err)
	srv := httptest.NewServer(emu)
	t.Cleanup(srv.Close)

	// The env token store reads the real process environment
	t.Setenv(tokenVariable, "static-token")

	return &harness{
		t:       t,
		baseURL: srv.URL,
		environ: []string{
			"RCONF_PROJECT_ID=demo",
			"RCONF_AUTH__METHOD=static",
			"RCONF_AUTH__STORAGE=env",
			"RCONF_AUTH__ENV_KEY=" + tokenVariable,
			"RCONF_LOG_LEVEL=error",
		},
	}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCommand(environ(h.environ...))
	cmd.Writer = &out
	cmd.ErrWriter = &errOut
	cmd.Reader = strings.NewReader(stdin)

	full := append([]string{"rconf", "--service--base-url", h.baseURL}, args...)
	err := cmd.Run(h.t.Context(), full)
	return out.String(), err
}

func (h *harness) etag() string {
	h.t.Helper()

	out, err := h.run("", "etag")
	require.NoError(h.t, err)
	return strings.TrimSpace(out)
}

func writeTemplate(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestCommands_Token(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "token")
	require.NoError(t, err)
	assert.Equal(t, "static-token\n", out)
}

func TestCommands_GetAndDocument(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "get")
	require.NoError(t, err)

	var res remoteconfig.FetchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, strings.HasPrefix(res.Version, "etag-"))
	assert.Empty(t, res.Document)

	out, err = h.run("", "document")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, out)
}

func TestCommands_UpdateFlow(t *testing.T) {
	h := newHarness(t)

	stale := h.etag()
	path := writeTemplate(t, "template.yaml", "parameters:\n  greeting:\n    defaultValue:\n      value: hello\n")

	out, err := h.run("", "--output", "yaml", "update", "--file", path, "--etag", stale)
	require.NoError(t, err)

	var res remoteconfig.UpdateResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.NotEqual(t, stale, res.Version)
	assert.Equal(t, res.Version, h.etag())

	// Writing again with the old ETag conflicts
	_, err = h.run("", "update", "--file", path, "--etag", stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, remoteconfig.ErrVersionConflict)
	assert.Equal(t, ExitConflict, ExitCode(err))
	assert.Contains(t, err.Error(), "read it again")
}

func TestCommands_UpdateRejectsUnquotedYAMLValues(t *testing.T) {
	h := newHarness(t)

	before := h.etag()
	path := writeTemplate(t, "template.yaml", "parameters:\n  limit:\n    defaultValue:\n      value: 10\n")

	_, err := h.run("", "update", "--file", path, "--etag", before)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a string")
	assert.Equal(t, before, h.etag(), "nothing may be written")
}

func TestCommands_UpdateFromStdin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(`{"parameters":{"a":{"defaultValue":{"value":"1"}}}}`, "update", "--file", "-", "--etag", h.etag())
	require.NoError(t, err)

	out, err := h.run("", "document")
	require.NoError(t, err)
	assert.JSONEq(t, `{"parameters":{"a":{"defaultValue":{"value":"1"}}}}`, out)
}

func TestCommands_UpdateRequiresFlags(t *testing.T) {
	h := newHarness(t)
	path := writeTemplate(t, "template.json", `{}`)

	_, err := h.run("", "update", "--file", path)
	require.Error(t, err)
}

func TestCommands_ForceUpdate(t *testing.T) {
	h := newHarness(t)
	path := writeTemplate(t, "template.json", `{"forced":true}`)

	// Non-interactive input without --yes is refused before any write
	_, err := h.run("y\n", "force-update", "--file", path)
	require.ErrorIs(t, err, errNotConfirmed)

	out, err := h.run("", "document")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, out)

	out, err = h.run("", "force-update", "--file", path, "--yes")
	require.NoError(t, err)

	var res remoteconfig.UpdateResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, remoteconfig.Document{"forced": true}, res.Document)
}

func TestCommands_MissingProjectID(t *testing.T) {
	h := newHarness(t)
	h.environ = h.environ[1:]
	t.Setenv(remoteconfig.ProjectIDEnv, "")

	_, err := h.run("", "etag")
	require.ErrorIs(t, err, remoteconfig.ErrMissingProjectID)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestCommands_InvalidOutputFormat(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "--output", "xml", "get")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFailure},
		{fmt.Errorf("wrapped: %w", remoteconfig.ErrVersionConflict), ExitConflict},
		{fmt.Errorf("%w: expired", remoteconfig.ErrAuth), ExitAuth},
		{fmt.Errorf("%w: %w", remoteconfig.ErrTransport, remoteconfig.ErrTimeout), ExitFailure},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stevemurr/site-content-server/cli"
	"github.com/stevemurr/site-content-server/config"
)

type harness struct {
	dir  string
	deps cli.Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{
		dir: dir,
		deps: cli.Dependencies{
			Version: "test",
			LoadConfig: func(string) (config.Config, error) {
				return config.Config{
					StoreBackend: "json",
					DataDir:      dir,
					LogFormat:    "text",
					LogLevel:     "error",
					Images:       config.ImagesConfig{Storage: "inline"},
				}, nil
			},
		},
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := cli.NewRootCommand(h.deps)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	code := 0
	if err := root.ExecuteContext(context.Background()); err != nil {
		code = 1
		stderr.WriteString(err.Error())
	}
	return code, stdout.String(), stderr.String()
}

func TestContentSetGetReset(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(h.dir, "hours.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
status: Closed
priceRange: "£"
hours:
  - day: Monday
    hours: Closed
`), 0o600))

	code, out, errOut := h.run(t, "", "content", "set", "hours", "-f", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Stored hours override")

	code, out, _ = h.run(t, "", "content", "get", "hours", "--query", "status")
	require.Equal(t, 0, code)
	assert.Equal(t, "Closed\n", out)

	code, out, _ = h.run(t, "", "content", "get", "hours", "-q", "hours.#")
	require.Equal(t, 0, code)
	assert.Equal(t, "1\n", out)

	code, out, _ = h.run(t, "", "content", "status")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "hours    override")
	assert.Contains(t, out, "menu     default")

	code, _, _ = h.run(t, "", "content", "reset", "--all")
	require.Equal(t, 0, code)

	code, out, _ = h.run(t, "", "content", "get", "hours", "-q", "hours.#")
	require.Equal(t, 0, code)
	assert.Equal(t, "7\n", out)
}

func TestContentSetFromJSONStdin(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run(t, `{"title":"Our story","paragraphs":["one"]}`, "content", "set", "about", "-f", "-")
	require.Equal(t, 0, code, errOut)

	code, out, _ := h.run(t, "", "content", "get", "about", "-q", "title")
	require.Equal(t, 0, code)
	assert.Equal(t, "Our story\n", out)

	code, _, _ = h.run(t, "", "content", "reset", "about")
	require.Equal(t, 0, code)
	code, out, _ = h.run(t, "", "content", "get", "about", "-q", "title")
	require.Equal(t, 0, code)
	assert.NotEqual(t, "Our story\n", out)
}

func TestContentErrors(t *testing.T) {
	h := newHarness(t)

	code, _, errOut := h.run(t, "", "content", "get", "specials")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "specials")

	code, _, _ = h.run(t, "[1, 2]", "content", "set", "menu", "-f", "-")
	assert.Equal(t, 1, code)

	code, _, _ = h.run(t, "", "content", "reset")
	assert.Equal(t, 1, code)

	code, _, _ = h.run(t, "", "content", "get", "hours", "-q", "nowhere")
	assert.Equal(t, 1, code)
}

func TestContentExportYAML(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run(t, "", "content", "export")
	require.Equal(t, 0, code)
	for _, key := range []string{"menu:", "contact:", "hours:", "hero:", "about:", "gallery:"} {
		assert.Contains(t, out, key)
	}

	code, out, _ = h.run(t, "", "content", "export", "--format", "json")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "{"))

	code, _, _ = h.run(t, "", "content", "export", "--format", "xml")
	assert.Equal(t, 1, code)
}

func TestHashPassword(t *testing.T) {
	h := newHarness(t)

	code, out, _ := h.run(t, "", "hash-password", "s3cret")
	require.Equal(t, 0, code)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("s3cret")))

	code, out, _ = h.run(t, "from-stdin\n", "hash-password")
	require.Equal(t, 0, code)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	code, _, _ = h.run(t, "", "hash-password")
	assert.Equal(t, 1, code)
}

func TestImagesSweepWithNothingStored(t *testing.T) {
	h := newHarness(t)
	code, out, errOut := h.run(t, "", "images", "sweep")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Removed 0 stored image(s).")
}

func TestExecuteExitCodes(t *testing.T) {
	h := newHarness(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, cli.Execute(context.Background(), []string{"bake"}, h.deps, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "No such command 'bake'")

	stderr.Reset()
	assert.Equal(t, 1, cli.Execute(context.Background(), []string{"content", "get", "specials"}, h.deps, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Error:")

	stdout.Reset()
	assert.Equal(t, 0, cli.Execute(context.Background(), []string{"--version"}, h.deps, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "test")
}

func TestFlagOverridesConfig(t *testing.T) {
	h := newHarness(t)
	other := t.TempDir()

	code, _, errOut := h.run(t, `{"status":"Open","hours":[]}`, "--data_dir", other, "content", "set", "hours", "-f", "-")
	require.Equal(t, 0, code, errOut)

	code, out, _ := h.run(t, "", "--data-dir", other, "content", "get", "hours", "-q", "status")
	require.Equal(t, 0, code)
	assert.Equal(t, "Open\n", out)

	code, out, _ = h.run(t, "", "content", "get", "hours", "-q", "status")
	require.Equal(t, 0, code)
	assert.NotEqual(t, "Open\n", out, "the configured data dir is untouched")

	code, _, _ = h.run(t, "", "--backend", "memory", "content", "status")
	assert.Equal(t, 0, code)
}

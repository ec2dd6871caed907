package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/coachviz/internal/config"
	"github.com/harunnryd/coachviz/internal/executor"
	"github.com/harunnryd/coachviz/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\ncli-test")

// isolate points HOME at a temp dir and clears provider credentials so the
// developer's environment cannot leak into a run.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		config.EnvGeminiAPIKey,
		config.EnvOpenRouterAPIKey,
		config.EnvGoogleCloudProject,
		config.EnvGoogleCloudLocation,
		config.EnvImageModel,
		config.EnvConfigFile,
	} {
		t.Setenv(key, "")
	}
	return home
}

func writeTestConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfg = nil
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_TemplateLifecycle(t *testing.T) {
	home := isolate(t)
	root := filepath.Join(home, "templates")
	configPath := writeTestConfig(t, home, fmt.Sprintf("log:\n  level: error\ntemplates:\n  root: %s\n", root))

	out, err := runCLI(t, "--config", configPath, "template", "create", "Tennis/Minimal",
		"--audience", "junior", "--tags", "tennis,clean", "--activate")
	require.NoError(t, err)
	assert.Contains(t, out, "Created template tennis/minimal")
	assert.FileExists(t, filepath.Join(root, "tennis", "minimal", "template.yaml"))

	out, err = runCLI(t, "--config", configPath, "template", "active")
	require.NoError(t, err)
	assert.Equal(t, "tennis/minimal", strings.TrimSpace(out))

	knowledge := filepath.Join(home, "knowledge.md")
	require.NoError(t, os.WriteFile(knowledge, []byte("Eastern grip for juniors."), 0644))
	_, err = runCLI(t, "--config", configPath, "template", "knowledge", "set", "tennis/minimal", knowledge)
	require.NoError(t, err)

	out, err = runCLI(t, "--config", configPath, "template", "knowledge", "get", "tennis/minimal")
	require.NoError(t, err)
	assert.Equal(t, "Eastern grip for juniors.", strings.TrimSpace(out))

	out, err = runCLI(t, "--config", configPath, "template", "list", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, "tennis/minimal", gjson.Get(out, "0.id").String())
	assert.True(t, gjson.Get(out, "0.active").Bool())
	assert.Equal(t, "clean", gjson.Get(out, "0.tags.1").String())

	_, err = runCLI(t, "--config", configPath, "template", "delete", "tennis/minimal")
	require.NoError(t, err)
	_, err = runCLI(t, "--config", configPath, "template", "active")
	assert.Error(t, err)
}

func TestCLI_GenerateWritesImage(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		body, _ = io.ReadAll(r.Body)
		url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","images":[{"type":"image_url","image_url":{"url":%q}}]}}]}`, url)
	}))
	defer server.Close()

	home := isolate(t)
	configPath := writeTestConfig(t, home, fmt.Sprintf(`log:
  level: error
providers:
  registry:
    - name: openrouter
      api_key: or-key
      model: test/image-model
      base_url: %s
templates:
  root: %s
`, server.URL, filepath.Join(home, "templates")))

	output := filepath.Join(home, "out", "serve.png")
	out, err := runCLI(t, "--config", configPath, "generate",
		"--provider", "openrouter", "--type", "diagram", "--prompt", "kick serve toss", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "via openrouter/test/image-model")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	assert.Equal(t, "test/image-model", gjson.GetBytes(body, "model").String())
	assert.Contains(t, gjson.GetBytes(body, "messages.#(role==\"user\").content.0.text").String(), "Render this as a diagram.")
}

func TestWithImageType(t *testing.T) {
	assert.Equal(t, "serve", withImageType(" serve ", executor.DefaultImageType))
	assert.Equal(t, "serve", withImageType("serve", ""))
	assert.Equal(t, "Render this as a infographic.\n\nserve", withImageType("serve", "Infographic"))
}

func TestChildConfigEnv(t *testing.T) {
	env := childConfigEnv(&config.Config{
		Log:        config.LogConfig{Level: "debug"},
		Templates:  config.TemplatesConfig{Root: "/srv/templates"},
		Generation: config.GenerationConfig{MaxAttempts: 5, BaseDelay: "1s"},
		File:       "/etc/coachviz/config.yaml",
	})

	assert.Contains(t, env, "COACHVIZ_TEMPLATES__ROOT=/srv/templates")
	assert.Contains(t, env, "COACHVIZ_LOG__LEVEL=debug")
	assert.Contains(t, env, "COACHVIZ_GENERATION__MAX_ATTEMPTS=5")
	assert.Contains(t, env, "COACHVIZ_GENERATION__BASE_DELAY=1s")
	assert.Contains(t, env, "COACHVIZ_CONFIG=/etc/coachviz/config.yaml")
	for _, kv := range env {
		assert.False(t, strings.HasSuffix(kv, "="), "empty values are skipped: %s", kv)
	}
}

type recordingExecutor struct {
	req executor.Request
}

func (r *recordingExecutor) Execute(_ context.Context, req executor.Request) (executor.Result, error) {
	r.req = req
	return executor.Result{}, nil
}

func TestEnvExecutor_CredentialsWin(t *testing.T) {
	next := &recordingExecutor{}
	e := &envExecutor{next: next, env: []string{"COACHVIZ_LOG__LEVEL=debug"}}

	_, err := e.Execute(context.Background(), executor.Request{Provider: "gemini", Env: []string{"GEMINI_API_KEY=k"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"COACHVIZ_LOG__LEVEL=debug", "GEMINI_API_KEY=k"}, next.req.Env)
}

func TestResolveTemplate(t *testing.T) {
	root := t.TempDir()
	cfg = &config.Config{Templates: config.TemplatesConfig{Root: root}}
	t.Cleanup(func() { cfg = nil })
	ctx := context.Background()

	id, grid, err := resolveTemplate(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, grid)

	store := newTemplateStore()
	_, err = store.Create(ctx, template.CreateInput{ID: "tennis/minimal"})
	require.NoError(t, err)
	require.NoError(t, store.SetActive(ctx, "tennis/minimal"))

	refDir, err := store.ReferenceDir(ctx, "tennis/minimal")
	require.NoError(t, err)
	gridPath := filepath.Join(refDir, "grid-1.png")
	require.NoError(t, os.WriteFile(gridPath, pngBytes, 0644))
	require.NoError(t, store.SetActiveReference(ctx, "tennis/minimal", gridPath))

	id, grid, err = resolveTemplate(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "tennis/minimal", id)
	assert.Equal(t, gridPath, grid)

	id, grid, err = resolveTemplate(ctx, "tennis/minimal", "/explicit.png")
	require.NoError(t, err)
	assert.Equal(t, "tennis/minimal", id)
	assert.Equal(t, "/explicit.png", grid)

	_, _, err = resolveTemplate(ctx, "tennis/missing", "")
	assert.Error(t, err)
}

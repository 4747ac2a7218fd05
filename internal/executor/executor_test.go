package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrativeforge/loomwright/internal/promptreg"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

func newTestExecutor(t *testing.T, backend *provider.MockBackend) (*Executor, *savepoint.Store) {
	t.Helper()
	root := t.TempDir()
	sp := savepoint.New(root)
	require.NoError(t, sp.SetStory("teststory"))

	promptDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(promptDir, "chapters"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "chapters", "greet.txt"), []byte("Hello {name}"), 0o644))
	reg := promptreg.New(promptDir, ".txt")

	model := provider.NewMockProvider(provider.ModelConfig{Endpoint: "mock://m", Model: "m"}, backend)
	return New(sp, reg, model), sp
}

func TestExecuteSavepointHitShortCircuits(t *testing.T) {
	backend := &provider.MockBackend{Response: "should not be called"}
	ex, sp := newTestExecutor(t, backend)
	require.NoError(t, sp.Save("greeting", savepoint.String("cached value")))

	result, err := ex.Execute(context.Background(), Request{
		PromptID:    "chapters/greet",
		Variables:   map[string]string{"name": "Nova"},
		SavepointID: "greeting",
	})
	require.NoError(t, err)
	assert.Equal(t, "cached value", result.Content)
	assert.Empty(t, backend.LastMessages)
}

func TestExecuteMissWritesSavepoint(t *testing.T) {
	backend := &provider.MockBackend{Response: "generated text"}
	ex, sp := newTestExecutor(t, backend)

	result, err := ex.Execute(context.Background(), Request{
		PromptID:    "chapters/greet",
		Variables:   map[string]string{"name": "Nova"},
		SavepointID: "greeting",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated text", result.Content)

	has, err := sp.Has("greeting")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestExecuteJSONFallsBackToExtraction(t *testing.T) {
	backend := &provider.MockBackend{Response: "noise {\"ok\": true} trailing"}
	ex, _ := newTestExecutor(t, backend)

	result, err := ex.Execute(context.Background(), Request{
		PromptID:   "chapters/greet",
		Variables:  map[string]string{"name": "Nova"},
		ExpectJSON: true,
	})
	require.NoError(t, err)
	assert.True(t, result.JSONParsed)
	assert.JSONEq(t, `{"ok": true}`, result.Content)
}

func TestExecuteWithoutSavepointIDNeverPersists(t *testing.T) {
	backend := &provider.MockBackend{Response: "ephemeral"}
	ex, sp := newTestExecutor(t, backend)

	_, err := ex.Execute(context.Background(), Request{
		PromptID:  "chapters/greet",
		Variables: map[string]string{"name": "Nova"},
	})
	require.NoError(t, err)

	entries, err := sp.ListAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecuteJSONSurfacesErrorsWhenUnrecoverable(t *testing.T) {
	backend := &provider.MockBackend{Response: "no json here at all"}
	ex, _ := newTestExecutor(t, backend)

	result, err := ex.Execute(context.Background(), Request{
		PromptID:   "chapters/greet",
		Variables:  map[string]string{"name": "Nova"},
		ExpectJSON: true,
	})
	require.NoError(t, err)
	assert.False(t, result.JSONParsed)
	assert.NotEmpty(t, result.JSONErrors)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `plain`, StripCodeFences("plain"))
}

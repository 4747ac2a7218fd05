package critique

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/promptreg"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

func newTestChecker(t *testing.T, response string) *Checker {
	t.Helper()
	sp := savepoint.New(t.TempDir())
	require.NoError(t, sp.SetStory("teststory"))

	promptDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(promptDir, "critique"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "critique", "outline.txt"), []byte("Critique: {outline}"), 0o644))
	reg := promptreg.New(promptDir, ".txt")

	model := provider.NewMockProvider(provider.ModelConfig{Endpoint: "mock://m", Model: "m"}, &provider.MockBackend{Response: response})
	ex := executor.New(sp, reg, model)
	return New(ex, provider.ModelConfig{})
}

func TestCheckDetectsIssuesPrefix(t *testing.T) {
	c := newTestChecker(t, "ISSUES: the antagonist vanishes after chapter 2")
	res, err := c.Check(context.Background(), "draft outline text")
	require.NoError(t, err)
	assert.True(t, res.HasIssues)
	assert.Equal(t, "the antagonist vanishes after chapter 2", res.Issues)
}

func TestCheckCleanOutlineHasNoIssues(t *testing.T) {
	c := newTestChecker(t, "This outline is coherent and well-paced.")
	res, err := c.Check(context.Background(), "draft outline text")
	require.NoError(t, err)
	assert.False(t, res.HasIssues)
	assert.Empty(t, res.Issues)
}

func TestCheckTrimsLeadingWhitespaceBeforePrefix(t *testing.T) {
	c := newTestChecker(t, "  ISSUES: pacing drags")
	res, err := c.Check(context.Background(), "draft outline text")
	require.NoError(t, err)
	assert.True(t, res.HasIssues)
	assert.Equal(t, "pacing drags", res.Issues)
}

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrativeforge/loomwright/internal/savepoint"
)

// TestRunRejectsEmptyPromptWithoutTouchingSavepoint is §8 scenario 1: an
// empty prompt body is rejected before any savepoint directory exists.
func TestRunRejectsEmptyPromptWithoutTouchingSavepoint(t *testing.T) {
	root := t.TempDir()
	sp := savepoint.New(root)

	p := &Pipeline{Settings: Settings{StoryName: "teststory"}, Savepoint: sp}

	_, err := p.Run(context.Background(), "   \n\t  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt")

	_, statErr := os.Stat(filepath.Join(root, "teststory"))
	assert.True(t, os.IsNotExist(statErr), "no savepoint directory should be created for an empty prompt")
}

func TestPromptExtOrDefault(t *testing.T) {
	assert.Equal(t, ".txt", promptExtOrDefault(""))
	assert.Equal(t, ".md", promptExtOrDefault(".md"))
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 1, s.MaxChapters)
	assert.Greater(t, s.MaxEventAgeDays, 0)
}

package promptreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSubstitutesVariables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "chapters"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "chapters", "outline_core.txt"),
		[]byte("Write chapter {number} about {topic}."),
		0o644,
	))

	reg := New(dir, ".txt")
	out, err := reg.Load("chapters/outline_core", map[string]string{"number": "3", "topic": "betrayal"})
	require.NoError(t, err)
	assert.Equal(t, "Write chapter 3 about betrayal.", out)
}

func TestLoadMissingVariableIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.txt"), []byte("Hello {name}"), 0o644))

	reg := New(dir, ".txt")
	_, err := reg.Load("greet", map[string]string{})
	assert.ErrorIs(t, err, ErrTemplateError)
}

func TestLoadMissingAssetIsFatal(t *testing.T) {
	reg := New(t.TempDir(), ".txt")
	_, err := reg.Load("nonexistent", nil)
	assert.ErrorIs(t, err, ErrTemplateError)
}

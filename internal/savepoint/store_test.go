package savepoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.SetStory("my-story"))
	return s
}

func TestScalarRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("x", Int(42)))

	v, found, err := s.Load("x")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, KindInt, v.Kind)
	assert.Equal(t, int64(42), v.Int)

	has, err := s.Has("x")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Delete("x"))

	has, err = s.Has("x")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLoadAbsentIsDistinctFromEmpty(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("empty", String("")))
	v, found, err := s.Load("empty")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "", v.Str)

	_, found, err = s.Load("never-written")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStructuredRoundTrip(t *testing.T) {
	s := newTestStore(t)

	data := map[string]any{
		"events": []any{
			map[string]any{"description": "a", "importance": "high"},
		},
	}
	require.NoError(t, s.Save("recap", Struct(data)))

	v, found, err := s.Load("recap")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, KindStructured, v.Kind)

	m, ok := v.Structured.(map[string]any)
	require.True(t, ok)
	events, ok := m["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
}

func TestNestedStepID(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("chapter_1/scene_2", String("scene text")))
	v, found, err := s.Load("chapter_1/scene_2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "scene text", v.Str)

	_, err = os.Stat(filepath.Join(s.StoryDir(), "chapter_1", "scene_2.md"))
	require.NoError(t, err)
}

func TestOverwriteExisting(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("k", String("first")))
	require.NoError(t, s.Save("k", String("second")))

	v, found, err := s.Load("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "second", v.Str)
}

func TestNotBoundBeforeSetStory(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Has("x")
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestCorruptEntrySurfacedOnSingleRead(t *testing.T) {
	s := newTestStore(t)
	bad := filepath.Join(s.StoryDir(), "bad.md")
	require.NoError(t, os.WriteFile(bad, []byte("---\nnot: [valid\n---\nbody"), 0o644))

	_, _, err := s.Load("bad")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestListAllSkipsCorruptEntries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("good", String("ok")))

	bad := filepath.Join(s.StoryDir(), "bad.md")
	require.NoError(t, os.WriteFile(bad, []byte("---\nnot: [valid\n---\nbody"), 0o644))

	entries, err := s.ListAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].StepID)
}

func TestLoadWithMetadataLegacyFile(t *testing.T) {
	s := newTestStore(t)
	legacy := filepath.Join(s.StoryDir(), "legacy.md")
	require.NoError(t, os.WriteFile(legacy, []byte("plain text, no frontmatter"), 0o644))

	meta, found, err := s.LoadWithMetadata("legacy")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, true, meta["legacy_data"])
}

func TestSaveIsAtomic(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("atomic", String("value")))

	entries, err := os.ReadDir(s.StoryDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepath.Ext(e.Name()) == "" && e.Name() != "atomic.md")
	}
}

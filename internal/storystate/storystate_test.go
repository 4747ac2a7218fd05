package storystate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/promptreg"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/rag"
	"github.com/narrativeforge/loomwright/internal/savepoint"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

func newTestStore(t *testing.T) *savepoint.Store {
	t.Helper()
	sp := savepoint.New(t.TempDir())
	require.NoError(t, sp.SetStory("teststory"))
	return sp
}

func TestSaveLoadRoundTrip(t *testing.T) {
	sp := newTestStore(t)
	m := &Manager{}

	st := New()
	st.Context = Context{Direction: "rising tension", Themes: []string{"betrayal"}, Tension: 4}
	st.Characters["Nova"] = CharacterState{Developments: []string{"learned the truth"}, LastUpdated: 2}

	require.NoError(t, m.Save(sp, st))

	loaded, err := m.Load(sp)
	require.NoError(t, err)
	assert.Equal(t, "rising tension", loaded.Context.Direction)
	assert.Equal(t, 4, loaded.Context.Tension)
	assert.Equal(t, []string{"learned the truth"}, loaded.Characters["Nova"].Developments)
}

func TestLoadAbsentReturnsFreshState(t *testing.T) {
	sp := newTestStore(t)
	m := &Manager{}

	st, err := m.Load(sp)
	require.NoError(t, err)
	assert.Empty(t, st.Chapters)
	assert.NotNil(t, st.Characters)
}

func TestParseBulletsStripsMarkers(t *testing.T) {
	out := parseBullets("- first item\n* second item\n3. third item\n\nfourth item")
	assert.Equal(t, []string{"first item", "second item", "third item", "fourth item"}, out)
}

func TestParseTensionShift(t *testing.T) {
	assert.Equal(t, 2, parseTensionShift([]string{"tension rose by 2 points"}))
	assert.Equal(t, -3, parseTensionShift([]string{"tension dropped by -3"}))
	assert.Equal(t, 0, parseTensionShift(nil))
}

type fakeSearcher struct{ results []vectorstore.SearchResult }

func (f *fakeSearcher) Search(ctx context.Context, query string, opts rag.SearchOptions) ([]vectorstore.SearchResult, error) {
	return f.results, nil
}

type fakeModel struct{ byAxis map[string]string }

func (f *fakeModel) GenerateText(ctx context.Context, messages []provider.Message, opts provider.GenOptions) (string, error) {
	for axis, resp := range f.byAxis {
		for _, m := range messages {
			if len(m.Content) >= len(axis) && contains(m.Content, axis) {
				return resp, nil
			}
		}
	}
	return "- nothing notable", nil
}

func (f *fakeModel) GenerateJSON(ctx context.Context, messages []provider.Message, v any, opts provider.GenOptions) error {
	return fmt.Errorf("json mode not used")
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestIntrospectFillsChapterStateFromAllAxes(t *testing.T) {
	sp := newTestStore(t)
	promptRoot := t.TempDir()
	for axis, promptID := range introspectionPrompts {
		full := filepath.Join(promptRoot, promptID+".txt")
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("axis:"+axis+" context:{context}"), 0o644))
	}
	reg := promptreg.New(promptRoot, ".txt")

	model := &fakeModel{byAxis: map[string]string{
		"axis:tension_shifts": "- tension rose by 3",
	}}
	ex := executor.New(sp, reg, model)
	m := &Manager{Exec: ex, Model: provider.ModelConfig{}}

	searcher := &fakeSearcher{results: []vectorstore.SearchResult{{Chunk: vectorstore.Chunk{Content: "Nova confronted the council."}}}}

	st := New()
	require.NoError(t, m.Introspect(context.Background(), st, 2, searcher, "2026-07-31T00:00:00Z"))

	cs, ok := st.Chapters["2"]
	require.True(t, ok)
	assert.Equal(t, 2, cs.Number)
	assert.Equal(t, 3, cs.TensionShift)
	assert.Len(t, st.Evolution, 1)
	assert.Equal(t, 2, st.Evolution[0].Chapter)
}

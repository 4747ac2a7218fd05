package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrativeforge/loomwright/internal/chunker"
	"github.com/narrativeforge/loomwright/internal/reranker"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

type insertedRow struct {
	vectorstore.InsertChunk
	id int
}

type fakeStore struct {
	stories   map[string]int
	nextID    int
	inserted  []insertedRow
	searchRes []vectorstore.SearchResult
	deleted   vectorstore.DeleteFilters
	deleteN   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{stories: map[string]int{}, nextID: 1}
}

func (f *fakeStore) CreateStory(ctx context.Context, name, promptFile string) (int, error) {
	if id, ok := f.stories[name]; ok {
		return id, nil
	}
	id := f.nextID
	f.nextID++
	f.stories[name] = id
	return id, nil
}

func (f *fakeStore) InsertChunk(ctx context.Context, c vectorstore.InsertChunk) (int, error) {
	id := f.nextID
	f.nextID++
	f.inserted = append(f.inserted, insertedRow{InsertChunk: c, id: id})
	return id, nil
}

func (f *fakeStore) Search(ctx context.Context, queryVec []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	return f.searchRes, nil
}

func (f *fakeStore) DeleteByFilters(ctx context.Context, filters vectorstore.DeleteFilters) (int, error) {
	f.deleted = filters
	return f.deleteN, nil
}

func newTestService(store *fakeStore, rr *reranker.Reranker) *Service {
	return New(&fakeEmbedder{dim: 4}, store, rr, chunker.Options{MaxChunkSize: 20, OverlapSize: 5})
}

func TestCreateStorySetsActiveStory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	id, err := svc.CreateStory(context.Background(), "nova", "prompt.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 1, svc.storyID)
}

func TestCreateStoryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	id1, err := svc.CreateStory(context.Background(), "nova", "prompt.txt")
	require.NoError(t, err)
	id2, err := svc.CreateStory(context.Background(), "nova", "prompt.txt")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestIndexStampsStoryIDAndContentType(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	_, err := svc.CreateStory(context.Background(), "nova", "prompt.txt")
	require.NoError(t, err)

	ids, err := svc.IndexCharacter(context.Background(), "a fairly long character description that spans multiple chunks of text", map[string]any{"character_name": "Ada"})
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	for _, row := range store.inserted {
		assert.Equal(t, svc.storyID, row.StoryID)
		assert.Equal(t, ContentTypeCharacter, row.ContentType)
		assert.Equal(t, "Ada", row.Metadata["character_name"])
	}
}

func TestIndexEmptyTextProducesNoChunks(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ids, err := svc.Index(context.Background(), "", ContentTypeOutline, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, store.inserted)
}

func TestSearchDefaultsToActiveStory(t *testing.T) {
	store := newFakeStore()
	store.searchRes = []vectorstore.SearchResult{{Chunk: vectorstore.Chunk{ID: 1}, Similarity: 0.5}}
	svc := newTestService(store, nil)
	_, err := svc.CreateStory(context.Background(), "nova", "prompt.txt")
	require.NoError(t, err)

	results, err := svc.Search(context.Background(), "query", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchRerankedWithoutRerankerReturnsSearchOrder(t *testing.T) {
	store := newFakeStore()
	store.searchRes = []vectorstore.SearchResult{
		{Chunk: vectorstore.Chunk{ID: 1}, Similarity: 0.9},
		{Chunk: vectorstore.Chunk{ID: 2}, Similarity: 0.1},
	}
	svc := newTestService(store, nil)
	results, err := svc.SearchReranked(context.Background(), "query", SearchOptions{}, reranker.StrategyHybrid)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ID)
}

func TestSearchRerankedAppliesRerankerOrder(t *testing.T) {
	store := newFakeStore()
	store.searchRes = []vectorstore.SearchResult{
		{Chunk: vectorstore.Chunk{ID: 1, Content: "irrelevant"}, Similarity: 0.9},
		{Chunk: vectorstore.Chunk{ID: 2, Content: "apple banana"}, Similarity: 0.1},
	}
	rr := reranker.New(reranker.RuleBasedConfig{}, nil)
	svc := newTestService(store, rr)

	results, err := svc.SearchReranked(context.Background(), "apple banana", SearchOptions{}, reranker.StrategyKeyword)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].ID, "keyword strategy should favor the matching chunk")
}

func TestCleanupByTypeAndMetadataDelegatesToStore(t *testing.T) {
	store := newFakeStore()
	store.deleteN = 3
	svc := newTestService(store, nil)

	n, err := svc.CleanupByTypeAndMetadata(context.Background(), ContentTypeOutline, map[string]any{"chunk_type": "theme_message"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, ContentTypeOutline, store.deleted.ContentType)
}

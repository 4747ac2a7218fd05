// Package rag implements the RAG Service (C9): the orchestrator that
// chunks, embeds, stores, and retrieves a story's content, enforcing
// per-story isolation so stories never bleed into one another's results.
package rag

import (
	"context"
	"fmt"

	"github.com/narrativeforge/loomwright/internal/chunker"
	"github.com/narrativeforge/loomwright/internal/reranker"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

// Embedder is the slice of the Embedding Provider this package depends
// on, so tests can substitute a fake without a network call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the slice of the Vector Store this package depends on.
type Store interface {
	CreateStory(ctx context.Context, name, promptFile string) (int, error)
	InsertChunk(ctx context.Context, c vectorstore.InsertChunk) (int, error)
	Search(ctx context.Context, queryVec []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error)
	DeleteByFilters(ctx context.Context, f vectorstore.DeleteFilters) (int, error)
}

// Content type stamps used by the typed indexing wrappers.
const (
	ContentTypeOutline     = "story_analysis_chunk"
	ContentTypeCharacter   = "character_chunk"
	ContentTypeSetting     = "setting_chunk"
	ContentTypeChapter     = "chapter_content"
	ContentTypeRecap       = "recap"
)

// Service is the RAG Service (C9). A Service is bound to one active
// story: every Index/Search call defaults to that story's row unless the
// caller explicitly searches cross-story.
type Service struct {
	embed    Embedder
	store    Store
	rerank   *reranker.Reranker
	storyID  int
	chunkCfg chunker.Options
}

// New builds a Service with no active story. Call CreateStory (or
// UseStory, for a story created earlier) before indexing.
func New(embed Embedder, store Store, rerank *reranker.Reranker, chunkCfg chunker.Options) *Service {
	return &Service{embed: embed, store: store, rerank: rerank, chunkCfg: chunkCfg}
}

// CreateStory creates (or reuses, idempotently) a story row and makes it
// the active story for subsequent Index/Search calls.
func (s *Service) CreateStory(ctx context.Context, storyName, promptFilePath string) (int, error) {
	id, err := s.store.CreateStory(ctx, storyName, promptFilePath)
	if err != nil {
		return 0, fmt.Errorf("rag: create_story: %w", err)
	}
	s.storyID = id
	return id, nil
}

// UseStory sets the active story without creating one, for resuming work
// against a story created in an earlier run.
func (s *Service) UseStory(storyID int) { s.storyID = storyID }

// Index chunks text, embeds each chunk, and inserts every chunk tagged
// with the active story and the given content type/metadata. It returns
// the ids of the inserted rows, in chunk order.
func (s *Service) Index(ctx context.Context, text, contentType string, metadata map[string]any) ([]int, error) {
	chunks := chunker.Split(text, s.chunkCfg)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	ids := make([]int, len(chunks))
	for i, c := range chunks {
		merged := mergeMetadata(metadata, c.Metadata)
		id, err := s.store.InsertChunk(ctx, vectorstore.InsertChunk{
			StoryID:     s.storyID,
			ContentType: contentType,
			Content:     c.Text,
			Metadata:    merged,
			Embedding:   vectors[i],
		})
		if err != nil {
			return nil, fmt.Errorf("rag: inserting chunk %d: %w", c.Index, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// IndexOutline stamps content_type:"story_analysis_chunk".
func (s *Service) IndexOutline(ctx context.Context, text string, metadata map[string]any) ([]int, error) {
	return s.Index(ctx, text, ContentTypeOutline, metadata)
}

// IndexCharacter stamps content_type:"character_chunk".
func (s *Service) IndexCharacter(ctx context.Context, text string, metadata map[string]any) ([]int, error) {
	return s.Index(ctx, text, ContentTypeCharacter, metadata)
}

// IndexSetting stamps content_type:"setting_chunk".
func (s *Service) IndexSetting(ctx context.Context, text string, metadata map[string]any) ([]int, error) {
	return s.Index(ctx, text, ContentTypeSetting, metadata)
}

// SearchOptions mirrors vectorstore.SearchOptions but leaves StoryID
// unset by default (the Service fills in the active story).
type SearchOptions struct {
	// StoryID, when non-nil, overrides the active story; set CrossStory
	// to search across all stories (it takes precedence over StoryID).
	StoryID         *int
	CrossStory      bool
	ContentType     string
	MetadataFilters map[string]any
	Limit           int
	Threshold       float32
}

func (s *Service) resolveStoryFilter(opts SearchOptions) *int {
	if opts.CrossStory {
		return nil
	}
	if opts.StoryID != nil {
		return opts.StoryID
	}
	id := s.storyID
	return &id
}

// Search embeds query and runs a similarity search scoped to the active
// story (or cross-story, when requested).
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) ([]vectorstore.SearchResult, error) {
	vecs, err := s.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query: %w", err)
	}

	results, err := s.store.Search(ctx, vecs[0], vectorstore.SearchOptions{
		StoryID:         s.resolveStoryFilter(opts),
		ContentType:     opts.ContentType,
		MetadataFilters: opts.MetadataFilters,
		Limit:           opts.Limit,
		Threshold:       opts.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	return results, nil
}

// SearchReranked runs Search, then rescoring through the Reranker before
// returning results in reranked order. If no reranker is configured, it
// behaves exactly like Search.
func (s *Service) SearchReranked(ctx context.Context, query string, opts SearchOptions, strategy reranker.Strategy) ([]vectorstore.SearchResult, error) {
	results, err := s.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if s.rerank == nil || len(results) == 0 {
		return results, nil
	}

	candidates := make([]reranker.Candidate, len(results))
	byChunkID := make(map[int]vectorstore.SearchResult, len(results))
	for i, r := range results {
		candidates[i] = reranker.Candidate{
			ChunkID:            r.ID,
			ContentType:        r.ContentType,
			Content:            r.Content,
			Metadata:           r.Metadata,
			OriginalSimilarity: float64(r.Similarity),
		}
		byChunkID[r.ID] = r
	}

	ranked := s.rerank.Rerank(ctx, query, candidates, strategy)
	out := make([]vectorstore.SearchResult, len(ranked))
	for i, rr := range ranked {
		row := byChunkID[rr.ChunkID]
		row.Similarity = float32(rr.RerankedScore)
		out[i] = row
	}
	return out, nil
}

// CleanupByTypeAndMetadata bulk-deletes chunks ahead of re-indexing an
// updated artifact.
func (s *Service) CleanupByTypeAndMetadata(ctx context.Context, contentType string, metadataFilters map[string]any) (int, error) {
	n, err := s.store.DeleteByFilters(ctx, vectorstore.DeleteFilters{ContentType: contentType, MetadataFilters: metadataFilters})
	if err != nil {
		return 0, fmt.Errorf("rag: cleanup_by_type_and_metadata: %w", err)
	}
	return n, nil
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a pooled connection to the pgvector-backed schema. Every
// operation acquires a connection for its duration and releases it; there
// are no multi-statement transactions spanning operations.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pool to dsn. Callers should call Bootstrap(dsn) once
// beforehand (or rely on an externally-managed schema).
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting: %v", ErrTransport, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrTransport, err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// vectorLiteral renders a float32 slice as the textual form pgvector
// accepts, e.g. "[0.1,0.2,0.3]".
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// CreateStory is idempotent on story_name: a second call for an existing
// name returns the existing id rather than erroring.
func (s *Store) CreateStory(ctx context.Context, name, promptFile string) (int, error) {
	const q = `
		INSERT INTO stories (story_name, prompt_file_name)
		VALUES ($1, $2)
		ON CONFLICT (story_name) DO UPDATE SET story_name = EXCLUDED.story_name
		RETURNING id`
	var id int
	if err := s.pool.QueryRow(ctx, q, name, promptFile).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: create_story: %v", ErrTransport, err)
	}
	return id, nil
}

// ListStories returns every story row, most recent first.
func (s *Store) ListStories(ctx context.Context) ([]Story, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, story_name, prompt_file_name, created_at FROM stories ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list_stories: %v", ErrTransport, err)
	}
	defer rows.Close()

	var out []Story
	for rows.Next() {
		var st Story
		if err := rows.Scan(&st.ID, &st.StoryName, &st.PromptFileName, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning story row: %v", ErrTransport, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetStoryContent returns every chunk belonging to a story, oldest first.
func (s *Store) GetStoryContent(ctx context.Context, storyID int) ([]Chunk, error) {
	const q = `
		SELECT id, story_id, content_type, content_subtype, title, content, metadata,
		       chapter_number, scene_number, created_at
		FROM content_chunks
		WHERE story_id = $1
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q, storyID)
	if err != nil {
		return nil, fmt.Errorf("%w: get_story_content: %v", ErrTransport, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// InsertChunk inserts one chunk and returns its id.
func (s *Store) InsertChunk(ctx context.Context, c InsertChunk) (int, error) {
	metadata, err := marshalMetadata(c.Metadata)
	if err != nil {
		return 0, err
	}

	const q = `
		INSERT INTO content_chunks
			(story_id, content_type, content_subtype, title, content, metadata, embedding, chapter_number, scene_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9)
		RETURNING id`
	var id int
	err = s.pool.QueryRow(ctx, q,
		c.StoryID, c.ContentType, c.ContentSubtype, c.Title, c.Content, metadata,
		vectorLiteral(c.Embedding), c.ChapterNumber, c.SceneNumber,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert_chunk: %v", ErrTransport, err)
	}
	return id, nil
}

// Search runs a cosine-similarity search, applying the spec's filters and
// ordering by similarity descending; rows below threshold are omitted.
func (s *Store) Search(ctx context.Context, queryVec []float32, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	var b strings.Builder
	args := []any{vectorLiteral(queryVec)}
	crossStory := opts.StoryID == nil

	if crossStory {
		b.WriteString(`
			SELECT c.id, c.story_id, c.content_type, c.content_subtype, c.title, c.content, c.metadata,
			       c.chapter_number, c.scene_number, c.created_at,
			       s.story_name, s.prompt_file_name,
			       1 - (c.embedding <=> $1::vector) AS similarity
			FROM content_chunks c
			JOIN stories s ON s.id = c.story_id
			WHERE 1=1`)
	} else {
		b.WriteString(`
			SELECT c.id, c.story_id, c.content_type, c.content_subtype, c.title, c.content, c.metadata,
			       c.chapter_number, c.scene_number, c.created_at,
			       '' AS story_name, '' AS prompt_file_name,
			       1 - (c.embedding <=> $1::vector) AS similarity
			FROM content_chunks c
			WHERE 1=1`)
		args = append(args, *opts.StoryID)
		fmt.Fprintf(&b, " AND c.story_id = $%d", len(args))
	}

	if opts.ContentType != "" {
		args = append(args, opts.ContentType)
		fmt.Fprintf(&b, " AND c.content_type = $%d", len(args))
	}
	for key, val := range opts.MetadataFilters {
		args = append(args, key)
		keyArg := len(args)
		args = append(args, fmt.Sprintf("%v", val))
		valArg := len(args)
		fmt.Fprintf(&b, " AND c.metadata ->> $%d = $%d", keyArg, valArg)
	}

	args = append(args, opts.Threshold)
	fmt.Fprintf(&b, " AND 1 - (c.embedding <=> $1::vector) >= $%d", len(args))

	b.WriteString(" ORDER BY similarity DESC")
	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrTransport, err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadata []byte
		if err := rows.Scan(&r.ID, &r.StoryID, &r.ContentType, &r.ContentSubtype, &r.Title, &r.Content, &metadata,
			&r.ChapterNumber, &r.SceneNumber, &r.CreatedAt, &r.StoryName, &r.PromptFileName, &r.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning search row: %v", ErrTransport, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("vectorstore: decoding metadata: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteByFilters removes every chunk matching filters and returns the
// count removed.
func (s *Store) DeleteByFilters(ctx context.Context, f DeleteFilters) (int, error) {
	var b strings.Builder
	args := []any{}
	b.WriteString("DELETE FROM content_chunks WHERE 1=1")

	if f.ContentType != "" {
		args = append(args, f.ContentType)
		fmt.Fprintf(&b, " AND content_type = $%d", len(args))
	}
	for key, val := range f.MetadataFilters {
		args = append(args, key)
		keyArg := len(args)
		args = append(args, fmt.Sprintf("%v", val))
		valArg := len(args)
		fmt.Fprintf(&b, " AND metadata ->> $%d = $%d", keyArg, valArg)
	}

	tag, err := s.pool.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("%w: delete_by_filters: %v", ErrTransport, err)
	}
	return int(tag.RowsAffected()), nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: marshaling metadata: %w", err)
	}
	return b, nil
}

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.StoryID, &c.ContentType, &c.ContentSubtype, &c.Title, &c.Content, &metadata,
			&c.ChapterNumber, &c.SceneNumber, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk row: %v", ErrTransport, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("vectorstore: decoding metadata: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

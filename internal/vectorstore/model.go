// Package vectorstore implements the Vector Store (C6): a pgvector-backed
// Postgres table of story content chunks, with similarity search, metadata
// filtering, and the embedding-dimension migration routine.
package vectorstore

import (
	"errors"
	"time"
)

// ErrTransport wraps any Postgres connection/query failure.
var ErrTransport = errors.New("vectorstore: database error")

// Story is one row of the stories table.
type Story struct {
	ID             int
	StoryName      string
	PromptFileName string
	CreatedAt      time.Time
}

// Chunk is one row of content_chunks, as returned by reads.
type Chunk struct {
	ID             int
	StoryID        int
	ContentType    string
	ContentSubtype string
	Title          string
	Content        string
	Metadata       map[string]any
	ChapterNumber  *int
	SceneNumber    *int
	CreatedAt      time.Time

	// StoryName/PromptFileName are populated only by cross-story searches
	// (story_id = nil), matching the spec's "when story_id is null, rows
	// also include story_name and prompt_file_name".
	StoryName      string
	PromptFileName string
}

// InsertChunk describes one row to insert.
type InsertChunk struct {
	StoryID        int
	ContentType    string
	ContentSubtype string
	Title          string
	Content        string
	Metadata       map[string]any
	Embedding      []float32
	ChapterNumber  *int
	SceneNumber    *int
}

// SearchOptions filters and bounds a similarity search.
type SearchOptions struct {
	// StoryID, when nil, searches across all stories and populates
	// StoryName/PromptFileName on results.
	StoryID         *int
	ContentType     string
	MetadataFilters map[string]any
	Limit           int
	Threshold       float32
}

// SearchResult is one scored row from search().
type SearchResult struct {
	Chunk
	Similarity float32
}

// DeleteFilters scopes a bulk delete.
type DeleteFilters struct {
	ContentType     string
	MetadataFilters map[string]any
}

// MigrationRecord is one row of migration_status.
type MigrationRecord struct {
	ID                 int
	Type               string
	FromDim            int
	ToDim              int
	Status             string
	MigrationTableName string
	CreatedAt          time.Time
	CompletedAt        *time.Time
	ErrorMessage        string
}

const (
	MigrationStatusInProgress = "in_progress"
	MigrationStatusCompleted  = "completed"
	MigrationStatusFailed     = "failed"
)

// Package chapter implements the Chapter Generator (C13): the top-level,
// per-chapter pipeline that produces a synopsis, a chapter outline, its
// scenes, a recap, and a title, driving the character/setting managers
// (C10) and the recap engine (C11) along the way.
package chapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/narrativeforge/loomwright/internal/critique"
	"github.com/narrativeforge/loomwright/internal/entity"
	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/recap"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

// ErrSkipChapter signals that a chapter could not be produced (no
// synopsis available) and the generator should move on to the next
// chapter rather than abort the run, per §8 scenario 6.
var ErrSkipChapter = errors.New("chapter: no synopsis available, skipping")

const minSceneWords = 500

// SceneDefinition is one element of a chapter's scene-definitions array.
type SceneDefinition struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Scene is one fully generated scene.
type Scene struct {
	Number  int
	Title   string
	Content string
}

// Chapter is the fully assembled result of generating one chapter.
type Chapter struct {
	Number  int
	Title   string
	Content string
	Outline string
	Scenes  []Scene
	Recap   string
}

// RAGIndexer is the slice of the RAG Service the chapter pipeline uses
// directly (beyond what the entity managers already use).
type RAGIndexer interface {
	Index(ctx context.Context, text, contentType string, metadata map[string]any) ([]int, error)
}

// Generator drives one story's chapter-by-chapter pipeline.
type Generator struct {
	Exec       *executor.Executor
	Model      provider.ModelConfig
	Savepoint  *savepoint.Store
	RAG        RAGIndexer
	Characters *entity.Manager
	Settings   *entity.Manager
	Recap      *recap.Engine
	Critique   *critique.Checker
}

// New builds a Generator from its collaborators.
func New(exec *executor.Executor, model provider.ModelConfig, sp *savepoint.Store, ragSvc RAGIndexer, characters, settings *entity.Manager, recapEngine *recap.Engine, critiqueChecker *critique.Checker) *Generator {
	return &Generator{
		Exec:       exec,
		Model:      model,
		Savepoint:  sp,
		RAG:        ragSvc,
		Characters: characters,
		Settings:   settings,
		Recap:      recapEngine,
		Critique:   critiqueChecker,
	}
}

func savepointPrefix(n int) string { return fmt.Sprintf("chapter_%d", n) }

func (g *Generator) save(stepID, value string) error {
	return g.Exec.Savepoint.Save(stepID, savepoint.String(value))
}

func (g *Generator) load(stepID string) (string, bool, error) {
	v, found, err := g.Exec.Savepoint.Load(stepID)
	if err != nil {
		return "", false, err
	}
	return v.AsText(), found, nil
}

// parseSceneDefinitions implements §4.13 step 3a: parse a JSON array of
// {title, description} from the disambiguated outline, falling back to a
// single scene wrapping the whole outline when parsing fails.
func parseSceneDefinitions(outline string) []SceneDefinition {
	cleaned := executor.StripCodeFences(outline)
	var defs []SceneDefinition
	if err := json.Unmarshal([]byte(cleaned), &defs); err == nil && len(defs) > 0 {
		return defs
	}
	return []SceneDefinition{{Title: "Chapter Scene", Description: outline}}
}

// assembleContent joins scenes into the chapter's full text, per §4.13
// step 3d.
func assembleContent(scenes []Scene) string {
	parts := make([]string, len(scenes))
	for i, s := range scenes {
		parts[i] = fmt.Sprintf("## %s\n\n%s", s.Title, s.Content)
	}
	return strings.Join(parts, "\n\n")
}

func logSkip(n int, reason string) {
	log.Printf("[Chapter %d] skipped: %s", n, reason)
}

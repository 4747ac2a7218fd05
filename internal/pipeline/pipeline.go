package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/narrativeforge/loomwright/internal/chapter"
	"github.com/narrativeforge/loomwright/internal/critique"
	"github.com/narrativeforge/loomwright/internal/embedding"
	"github.com/narrativeforge/loomwright/internal/entity"
	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/outline"
	"github.com/narrativeforge/loomwright/internal/promptreg"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/rag"
	"github.com/narrativeforge/loomwright/internal/recap"
	"github.com/narrativeforge/loomwright/internal/reranker"
	"github.com/narrativeforge/loomwright/internal/savepoint"
	"github.com/narrativeforge/loomwright/internal/storystate"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

// ErrEmptyPrompt is the pipeline's one validation gate: an empty prompt
// body is rejected before any savepoint directory is created, per §8
// scenario 1.
var ErrEmptyPrompt = errors.New("pipeline: prompt is empty")

// Pipeline is the composition root wiring C1-C14 together for one story's
// end-to-end generation run, the way thunk's orchestrator wires
// ingest -> cluster -> rag.
type Pipeline struct {
	Settings Settings

	Savepoint   *savepoint.Store
	VectorStore *vectorstore.Store
	RAG         *rag.Service

	Outline    *outline.Generator
	Chapter    *chapter.Generator
	StoryState *storystate.Manager
}

// Summary is the pipeline's return value: enough to report what the run
// produced without re-reading the savepoint store.
type Summary struct {
	StoryID      int
	Chapters     []chapter.Chapter
	StoryElements string
}

// Build constructs every collaborator from Settings, following the
// "classes-with-many-managers" note in §9: each manager is a stateless
// function group bundling (savepoint, prompts, provider), not a mutable
// singleton.
func Build(ctx context.Context, settings Settings) (*Pipeline, error) {
	sp := savepoint.New(settings.SavepointRoot)

	genRegistry := promptreg.New(settings.PromptRoot, promptExtOrDefault(settings.PromptExt))
	critiqueRoot := settings.CritiquePromptRoot
	if critiqueRoot == "" {
		critiqueRoot = settings.PromptRoot
	}
	critiqueRegistry := promptreg.New(critiqueRoot, promptExtOrDefault(settings.PromptExt))

	// Every stage shares one configured backend: §9's "classes-with-many-
	// managers" note models per-stage ModelConfig as request metadata,
	// not as distinct provider instances, so one Provider instance serves
	// every Executor built below.
	modelProvider, err := provider.New(settings.ChapterModel)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build model provider: %w", err)
	}

	genExec := executor.New(sp, genRegistry, modelProvider)
	critiqueExec := executor.New(sp, critiqueRegistry, modelProvider)

	embedProvider, err := embedding.New(settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build embedding provider: %w", err)
	}

	if settings.DatabaseDSN == "" {
		return nil, fmt.Errorf("pipeline: missing database DSN")
	}
	if err := vectorstore.Bootstrap(settings.DatabaseDSN); err != nil {
		return nil, fmt.Errorf("pipeline: bootstrap schema: %w", err)
	}
	vs, err := vectorstore.Open(ctx, settings.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open vector store: %w", err)
	}

	var rerank *reranker.Reranker
	if settings.RerankEnabled {
		rerank = reranker.New(reranker.RuleBasedConfig{}, nil)
	}
	ragSvc := rag.New(embedProvider, vs, rerank, settings.Chunker)

	characters := entity.New(entity.Character, genExec, settings.EntityModel, ragSvc)
	settingsMgr := entity.New(entity.Setting, genExec, settings.EntityModel, ragSvc)

	recapEngine := recap.New(genExec, settings.RecapModel, settings.MaxEventAgeDays)
	critiqueChecker := critique.New(critiqueExec, settings.CritiqueModel)

	outlineGen := outline.New(genExec, settings.OutlineModel, ragSvc, outline.Managers{
		Characters: characters,
		Settings:   settingsMgr,
	})

	chapterGen := chapter.New(genExec, settings.ChapterModel, sp, ragSvc, characters, settingsMgr, recapEngine, critiqueChecker)

	storyStateMgr := storystate.NewManager(genExec, settings.ChapterModel)

	return &Pipeline{
		Settings:    settings,
		Savepoint:   sp,
		VectorStore: vs,
		RAG:         ragSvc,
		Outline:     outlineGen,
		Chapter:     chapterGen,
		StoryState:  storyStateMgr,
	}, nil
}

func promptExtOrDefault(ext string) string {
	if ext == "" {
		return ".txt"
	}
	return ext
}

// Close releases the vector store's connection pool.
func (p *Pipeline) Close() {
	if p.VectorStore != nil {
		p.VectorStore.Close()
	}
}

// Run executes the full pipeline for one prompt: outline generation
// followed by chapter-by-chapter book generation, per §5's ordering
// guarantee (chapter N+1 never starts before chapter N's recap lands).
func (p *Pipeline) Run(ctx context.Context, prompt string) (Summary, error) {
	if strings.TrimSpace(prompt) == "" {
		return Summary{}, fmt.Errorf("%w: prompt file body is empty", ErrEmptyPrompt)
	}

	if err := p.Savepoint.SetStory(p.Settings.StoryName); err != nil {
		return Summary{}, fmt.Errorf("pipeline: bind savepoint store: %w", err)
	}

	storyID, err := p.RAG.CreateStory(ctx, p.Settings.StoryName, p.Settings.PromptFile)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: create story: %w", err)
	}

	outlineResult, err := p.Outline.Generate(ctx, prompt)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: generate outline: %w", err)
	}

	maxChapters := p.Settings.MaxChapters
	if maxChapters <= 0 {
		maxChapters = 1
	}
	book, err := p.Chapter.GenerateBook(ctx, maxChapters)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: generate book: %w", err)
	}

	log.Printf("[Pipeline] story %q: %d chapters produced", p.Settings.StoryName, len(book))
	return Summary{StoryID: storyID, Chapters: book, StoryElements: outlineResult.StoryElements}, nil
}

package outline

import (
	"context"
	"fmt"
	"log"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

// RAGIndexer is the slice of the RAG Service the Generator depends on.
type RAGIndexer interface {
	IndexOutline(ctx context.Context, text string, metadata map[string]any) ([]int, error)
}

// Generator drives §4.12: understand the prompt, produce the eight
// story-analysis chunks, extract the start date and base context, and
// assemble story_elements.
type Generator struct {
	Exec     *executor.Executor
	Model    provider.ModelConfig
	RAG      RAGIndexer
	Managers Managers
}

// New builds a Generator.
func New(exec *executor.Executor, model provider.ModelConfig, ragSvc RAGIndexer, managers Managers) *Generator {
	return &Generator{Exec: exec, Model: model, RAG: ragSvc, Managers: managers}
}

// Result is everything downstream chapter generation needs from the
// outline stage.
type Result struct {
	StoryElements  string
	BaseContext    string
	StoryStartDate string
}

// Generate runs the full outline pipeline for one story prompt.
func (g *Generator) Generate(ctx context.Context, prompt string) (Result, error) {
	understood, err := g.understandPrompt(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	chunks, err := g.storyAnalysisChunks(ctx, prompt, understood)
	if err != nil {
		return Result{}, err
	}

	startDate, err := g.extractStartDate(ctx, chunks["core_story_foundation"])
	if err != nil {
		return Result{}, err
	}
	baseContext, err := g.extractBaseContext(ctx, chunks["core_story_foundation"])
	if err != nil {
		return Result{}, err
	}

	elements := AssembleStoryElements(chunks)
	if err := g.Exec.Savepoint.Save("story_elements", savepoint.String(elements)); err != nil {
		return Result{}, fmt.Errorf("outline: save story_elements: %w", err)
	}

	if err := g.generateEntitySheets(ctx, elements); err != nil {
		return Result{}, err
	}

	return Result{StoryElements: elements, BaseContext: baseContext, StoryStartDate: startDate}, nil
}

// understandPrompt is §4.12 step 1: a single prompt turn warming up the
// model with the user's prompt (no further conversation turns are run
// here); its response seeds every subsequent story-analysis chunk's
// transcript.
func (g *Generator) understandPrompt(ctx context.Context, prompt string) (string, error) {
	res, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "outline/understand_prompt",
		Variables:   map[string]string{"prompt": prompt},
		SavepointID: "understand_prompt",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", fmt.Errorf("outline: understand prompt: %w", err)
	}
	return res.Content, nil
}

// storyAnalysisChunks is §4.12 step 2: eight conversations, each
// continuing from the seed transcript with one specialized follow-up.
// Each chunk is saved and immediately indexed into RAG.
func (g *Generator) storyAnalysisChunks(ctx context.Context, prompt, understood string) (map[string]string, error) {
	seed := []provider.Message{
		{Role: provider.RoleUser, Content: prompt},
		{Role: provider.RoleAssistant, Content: understood},
	}

	chunks := make(map[string]string, len(chunkNames))
	for _, name := range chunkNames {
		followUp, err := g.Exec.Prompts.Load("outline/story_analysis/"+name, nil)
		if err != nil {
			return nil, fmt.Errorf("outline: render %s follow-up: %w", name, err)
		}
		transcript := append(append([]provider.Message{}, seed...),
			provider.Message{Role: provider.RoleUser, Content: followUp})

		savepointID := "story_analysis/" + name + "_chunk"
		res, err := g.Exec.Execute(ctx, executor.Request{
			ConversationHistory: transcript,
			SavepointID:         savepointID,
			ModelConfig:         g.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("outline: generate %s chunk: %w", name, err)
		}
		chunks[name] = res.Content

		if g.RAG != nil {
			if _, err := g.RAG.IndexOutline(ctx, res.Content, map[string]any{"chunk_type": name}); err != nil {
				return nil, fmt.Errorf("outline: index %s chunk: %w", name, err)
			}
		}
	}
	return chunks, nil
}

func (g *Generator) extractStartDate(ctx context.Context, coreStoryFoundation string) (string, error) {
	res, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "outline/extract_start_date",
		Variables:   map[string]string{"core_story_foundation": coreStoryFoundation},
		SavepointID: "story_start_date",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", fmt.Errorf("outline: extract start date: %w", err)
	}
	return res.Content, nil
}

func (g *Generator) extractBaseContext(ctx context.Context, coreStoryFoundation string) (string, error) {
	res, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "outline/extract_base_context",
		Variables:   map[string]string{"core_story_foundation": coreStoryFoundation},
		SavepointID: "base_context",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", fmt.Errorf("outline: extract base context: %w", err)
	}
	return res.Content, nil
}

// generateEntitySheets is §4.12 step 5: extract character and setting
// names from story_elements and drive both entity managers.
func (g *Generator) generateEntitySheets(ctx context.Context, storyElements string) error {
	if g.Managers.Characters != nil {
		names, err := g.Managers.Characters.ExtractNames(ctx, storyElements, "characters/names")
		if err != nil {
			return fmt.Errorf("outline: extract character names: %w", err)
		}
		for _, name := range names {
			if err := g.Managers.Characters.GenerateSheet(ctx, name, map[string]string{"story_elements": storyElements}); err != nil {
				log.Printf("[Outline] character sheet for %q failed, continuing: %v", name, err)
			}
		}
	}
	if g.Managers.Settings != nil {
		names, err := g.Managers.Settings.ExtractNames(ctx, storyElements, "settings/names")
		if err != nil {
			return fmt.Errorf("outline: extract setting names: %w", err)
		}
		for _, name := range names {
			if err := g.Managers.Settings.GenerateSheet(ctx, name, map[string]string{"story_elements": storyElements}); err != nil {
				log.Printf("[Outline] setting sheet for %q failed, continuing: %v", name, err)
			}
		}
	}
	return nil
}

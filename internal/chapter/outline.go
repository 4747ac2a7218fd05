package chapter

import (
	"context"
	"fmt"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

// generateOutline is §4.13 step 2: load or generate entity sheets for the
// synopsis's names, core-outline → critique → improve → disambiguate →
// cleanup, saving every intermediate step and the final "outline".
func (g *Generator) generateOutline(ctx context.Context, n int, synopsis, previousRecap string) (string, []SceneDefinition, error) {
	prefix := savepointPrefix(n)

	characterSummaries, settingSummaries, err := g.loadEntitySummaries(ctx, synopsis)
	if err != nil {
		return "", nil, fmt.Errorf("load entity summaries: %w", err)
	}

	nextSynopsis, _, _ := g.load(savepointPrefix(n+1) + "/synopsis")

	variables := map[string]string{
		"chapter_number":      fmt.Sprintf("%d", n),
		"synopsis":            synopsis,
		"previous_recap":      previousRecap,
		"next_synopsis":       nextSynopsis,
		"character_summaries": characterSummaries,
		"setting_summaries":   settingSummaries,
	}

	core, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "chapters/outline/core",
		Variables:   variables,
		SavepointID: prefix + "/core_outline",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", nil, fmt.Errorf("core outline: %w", err)
	}

	working := core.Content
	if g.Critique != nil {
		verdict, err := g.Critique.Check(ctx, working)
		if err != nil {
			return "", nil, fmt.Errorf("critique core outline: %w", err)
		}
		if verdict.HasIssues {
			improveVars := map[string]string{"chapter_number": variables["chapter_number"], "outline": working, "issues": verdict.Issues}
			improved, err := g.Exec.Execute(ctx, executor.Request{
				PromptID:    "chapters/outline/improve",
				Variables:   improveVars,
				SavepointID: prefix + "/improved_outline",
				ModelConfig: g.Model,
			})
			if err != nil {
				return "", nil, fmt.Errorf("improve outline: %w", err)
			}
			working = improved.Content
		}
	}

	disambiguated, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "chapters/outline/disambiguate",
		Variables:   map[string]string{"chapter_number": variables["chapter_number"], "outline": working},
		SavepointID: prefix + "/disambiguated_outline",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", nil, fmt.Errorf("disambiguate outline: %w", err)
	}

	cleaned, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "chapters/outline/cleanup",
		Variables:   map[string]string{"chapter_number": variables["chapter_number"], "outline": disambiguated.Content},
		SavepointID: prefix + "/cleaned_outline",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", nil, fmt.Errorf("cleanup outline: %w", err)
	}

	if err := g.save(prefix+"/outline", cleaned.Content); err != nil {
		return "", nil, fmt.Errorf("save outline: %w", err)
	}

	sceneDefs := parseSceneDefinitions(disambiguated.Content)
	if err := g.saveSceneDefinitions(prefix, sceneDefs); err != nil {
		return "", nil, err
	}

	return cleaned.Content, sceneDefs, nil
}

func (g *Generator) saveSceneDefinitions(prefix string, defs []SceneDefinition) error {
	raw := make([]any, len(defs))
	for i, d := range defs {
		raw[i] = map[string]any{"title": d.Title, "description": d.Description}
	}
	return g.Exec.Savepoint.Save(prefix+"/scene_definitions", savepoint.Struct(raw))
}

// loadEntitySummaries is §4.13 step 2a: extract names mentioned in the
// synopsis and load (or generate, on first reference) their sheets'
// summaries for prompt injection.
func (g *Generator) loadEntitySummaries(ctx context.Context, synopsis string) (characters, settings string, err error) {
	if g.Characters != nil {
		names, err := g.Characters.ExtractNames(ctx, synopsis, "")
		if err != nil {
			return "", "", fmt.Errorf("extract character names: %w", err)
		}
		characters, err = g.Characters.Summaries(ctx, g.Savepoint, names)
		if err != nil {
			return "", "", fmt.Errorf("character summaries: %w", err)
		}
	}
	if g.Settings != nil {
		names, err := g.Settings.ExtractNames(ctx, synopsis, "")
		if err != nil {
			return "", "", fmt.Errorf("extract setting names: %w", err)
		}
		settings, err = g.Settings.Summaries(ctx, g.Savepoint, names)
		if err != nil {
			return "", "", fmt.Errorf("setting summaries: %w", err)
		}
	}
	return characters, settings, nil
}

// updateEntities is §4.13 step 3e: extract characters/settings appearing
// in the finished chapter content and revise their sheets.
func (g *Generator) updateEntities(ctx context.Context, chapterContent string) error {
	if g.Characters != nil {
		names, err := g.Characters.ExtractNames(ctx, chapterContent, "")
		if err != nil {
			return fmt.Errorf("extract character names: %w", err)
		}
		for _, name := range names {
			if err := g.Characters.ReviseSheet(ctx, g.Savepoint, name, chapterContent); err != nil {
				return fmt.Errorf("revise character %q: %w", name, err)
			}
		}
	}
	if g.Settings != nil {
		names, err := g.Settings.ExtractNames(ctx, chapterContent, "")
		if err != nil {
			return fmt.Errorf("extract setting names: %w", err)
		}
		for _, name := range names {
			if err := g.Settings.ReviseSheet(ctx, g.Savepoint, name, chapterContent); err != nil {
				return fmt.Errorf("revise setting %q: %w", name, err)
			}
		}
	}
	return nil
}

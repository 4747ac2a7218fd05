package chapter

import (
	"context"
	"fmt"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
)

// generateScenes is §4.13 step 3: generate (or load) every scene in
// order, per the scene-definitions array parsed from the disambiguated
// outline.
func (g *Generator) generateScenes(ctx context.Context, n int, defs []SceneDefinition) ([]Scene, error) {
	prefix := savepointPrefix(n)
	scenes := make([]Scene, len(defs))

	for i, def := range defs {
		sceneNum := i + 1
		contentID := fmt.Sprintf("%s/scene_%d", prefix, sceneNum)
		titleID := fmt.Sprintf("%s/scene_%d_title", prefix, sceneNum)

		content, found, err := g.load(contentID)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", sceneNum, err)
		}
		if !found {
			res, err := g.Exec.Execute(ctx, executor.Request{
				PromptID: "chapters/scenes/content",
				Variables: map[string]string{
					"chapter_number":    fmt.Sprintf("%d", n),
					"scene_number":      fmt.Sprintf("%d", sceneNum),
					"scene_title":       def.Title,
					"scene_description": def.Description,
				},
				SavepointID: contentID,
				ModelConfig: g.Model,
				Opts:        provider.GenOptions{MinWords: minSceneWords},
			})
			if err != nil {
				return nil, fmt.Errorf("scene %d content: %w", sceneNum, err)
			}
			content = res.Content
		}

		title, found, err := g.load(titleID)
		if err != nil {
			return nil, fmt.Errorf("scene %d title: %w", sceneNum, err)
		}
		if !found {
			res, err := g.Exec.Execute(ctx, executor.Request{
				PromptID:    "chapters/scenes/title",
				Variables:   map[string]string{"chapter_number": fmt.Sprintf("%d", n), "scene_description": def.Description, "scene_content": content},
				SavepointID: titleID,
				ModelConfig: g.Model,
			})
			if err != nil {
				return nil, fmt.Errorf("scene %d title: %w", sceneNum, err)
			}
			title = res.Content
		}

		scenes[i] = Scene{Number: sceneNum, Title: title, Content: content}

		if g.RAG != nil {
			chapterN, sceneN := n, sceneNum
			if _, err := g.RAG.Index(ctx, content, "chapter_content", map[string]any{
				"chapter_number": chapterN,
				"scene_number":   sceneN,
			}); err != nil {
				return nil, fmt.Errorf("index scene %d: %w", sceneNum, err)
			}
		}
	}
	return scenes, nil
}

// ensureRecap is §4.13 step 4.
func (g *Generator) ensureRecap(ctx context.Context, n int, content, previousRecap string) (string, error) {
	prefix := savepointPrefix(n)
	if existing, found, err := g.load(prefix + "/recap"); err != nil {
		return "", err
	} else if found {
		return existing, nil
	}

	if g.Recap == nil {
		return "", nil
	}
	startDate, _, _ := g.load("story_start_date")
	return g.Recap.Generate(ctx, n, content, previousRecap, startDate)
}

// ensureTitle is §4.13 step 5.
func (g *Generator) ensureTitle(ctx context.Context, n int, content, outline string) (string, error) {
	prefix := savepointPrefix(n)
	if existing, found, err := g.load(prefix + "/title"); err != nil {
		return "", err
	} else if found {
		return existing, nil
	}

	res, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "chapters/title",
		Variables:   map[string]string{"chapter_number": fmt.Sprintf("%d", n), "chapter_content": content, "outline": outline},
		SavepointID: prefix + "/title",
		ModelConfig: g.Model,
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return res.Content, nil
}

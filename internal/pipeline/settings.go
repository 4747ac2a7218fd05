// Package pipeline wires every component package (C1-C14) into the
// end-to-end book generation run, matching thunk's
// orchestrator -> rag -> narrative composition root.
package pipeline

import (
	"github.com/narrativeforge/loomwright/internal/chunker"
	"github.com/narrativeforge/loomwright/internal/embedding"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/recap"
	"github.com/narrativeforge/loomwright/internal/reranker"
)

// Settings is the plain generation-settings value object the orchestrator
// consumes, standing in for the original's model_config.py/
// generation_settings.py without parsing any file format -- file parsing
// stays a non-goal.
type Settings struct {
	StoryName      string
	PromptFile     string
	SavepointRoot  string
	DatabaseDSN    string

	OutlineModel   provider.ModelConfig
	ChapterModel   provider.ModelConfig
	CritiqueModel  provider.ModelConfig
	RecapModel     provider.ModelConfig
	EntityModel    provider.ModelConfig

	Embedding embedding.Config

	Chunker chunker.Options

	RerankEnabled  bool
	RerankStrategy reranker.Strategy

	MaxChapters     int
	MaxEventAgeDays int

	// PromptRoot is the directory containing the generation prompt
	// templates; CritiquePromptRoot may point at a separate root, per
	// the Prompt Registry's multi-root support.
	PromptRoot        string
	CritiquePromptRoot string
	PromptExt         string
}

// DefaultSettings fills in every field spec.md and SPEC_FULL.md give a
// concrete default for, leaving connection details to the caller.
func DefaultSettings() Settings {
	return Settings{
		PromptExt:       ".txt",
		MaxChapters:     1,
		MaxEventAgeDays: recap.DefaultMaxEventAgeDays,
		RerankStrategy:  reranker.StrategyHybrid,
		Chunker:         chunker.Options{},
	}
}

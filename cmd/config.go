package cmd

import (
	"os"
	"strconv"

	"github.com/narrativeforge/loomwright/internal/embedding"
	"github.com/narrativeforge/loomwright/internal/pipeline"
	"github.com/narrativeforge/loomwright/internal/provider"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// loadSettings builds a pipeline.Settings from environment variables,
// following thunk's convention of reading configuration entirely from
// the process environment (loaded via godotenv in Execute) rather than
// from a config file -- file-format parsing stays a non-goal.
func loadSettings(storyName, promptFile string) pipeline.Settings {
	s := pipeline.DefaultSettings()
	s.StoryName = storyName
	s.PromptFile = promptFile
	s.SavepointRoot = envOr("LOOMWRIGHT_SAVEPOINT_ROOT", "./savepoints")
	s.DatabaseDSN = os.Getenv("DATABASE_URL")
	s.PromptRoot = envOr("LOOMWRIGHT_PROMPT_ROOT", "./prompts")
	s.CritiquePromptRoot = os.Getenv("LOOMWRIGHT_CRITIQUE_PROMPT_ROOT")
	s.MaxChapters = envIntOr("LOOMWRIGHT_MAX_CHAPTERS", 1)
	s.RerankEnabled = os.Getenv("LOOMWRIGHT_RERANK") == "true"

	endpoint := envOr("LOOMWRIGHT_MODEL_ENDPOINT", defaultModelEndpoint())
	model := provider.ModelConfig{
		Endpoint: endpoint,
		APIKey:   os.Getenv("OPENAI_API_KEY"),
	}
	s.OutlineModel = model
	s.ChapterModel = model
	s.CritiqueModel = model
	s.RecapModel = model
	s.EntityModel = model

	s.Embedding = embedding.Config{
		Model:      envOr("LOOMWRIGHT_EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions: envIntOr("LOOMWRIGHT_EMBEDDING_DIMENSIONS", 1536),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		BaseURL:    os.Getenv("OPENAI_BASE_URL"),
	}

	return s
}

func defaultModelEndpoint() string {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		return "ollama://llama3.1@" + host
	}
	return "openai-compatible://gpt-4o-mini"
}

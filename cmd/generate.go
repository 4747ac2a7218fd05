package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/narrativeforge/loomwright/internal/ingest"
	"github.com/narrativeforge/loomwright/internal/pipeline"
)

var seedRepo string

var generateCmd = &cobra.Command{
	Use:   "generate [prompt-file]",
	Short: "Generate a book from a prompt file",
	Long: `Generate runs the full pipeline against a prompt file: outline
generation, character/setting sheets, and chapter-by-chapter generation,
checkpointing every step so an interrupted run can resume.

With --seed-repo, the prompt file argument is ignored and the seed
material is instead built from a Git repository's commit history and
(if GITHUB_TOKEN is set) its GitHub overview.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&seedRepo, "seed-repo", "", "build seed material from a Git repository instead of a prompt file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	prompt, promptFile, err := resolvePrompt(ctx, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt is empty: nothing to generate")
	}

	storyName := storyNameFromPromptFile(promptFile)
	settings := loadSettings(storyName, promptFile)

	p, err := pipeline.Build(ctx, settings)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}
	defer p.Close()

	summary, err := p.Run(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generating book: %w", err)
	}

	fmt.Printf("Generated %d chapters for story %q (story_id=%d)\n", len(summary.Chapters), storyName, summary.StoryID)
	return nil
}

// resolvePrompt reads the prompt body either from the positional prompt
// file argument or, with --seed-repo, from a repository's commit history
// and GitHub overview.
func resolvePrompt(ctx context.Context, args []string) (prompt, sourceName string, err error) {
	if seedRepo != "" {
		material, err := buildRepoSeedMaterial(ctx, seedRepo)
		if err != nil {
			return "", "", fmt.Errorf("building seed material from %q: %w", seedRepo, err)
		}
		return material, seedRepo, nil
	}

	if len(args) != 1 {
		return "", "", fmt.Errorf("prompt is empty: a prompt file argument is required")
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("reading prompt file %q: %w", args[0], err)
	}
	return string(body), args[0], nil
}

func buildRepoSeedMaterial(ctx context.Context, repo string) (string, error) {
	gitRepo, err := ingest.OpenLocalRepository(repo)
	if err != nil {
		gitRepo, err = ingest.CloneRepository(repo)
		if err != nil {
			return "", fmt.Errorf("opening or cloning %q: %w", repo, err)
		}
	}

	commits, err := ingest.CommitLog(gitRepo, 0)
	if err != nil {
		return "", fmt.Errorf("reading commit log: %w", err)
	}

	var overview *ingest.RepoOverview
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		owner, name := splitOwnerRepo(repo)
		if owner != "" && name != "" {
			client := ingest.NewGitHubClient(token)
			if o, err := ingest.FetchRepoOverview(ctx, client, owner, name); err == nil {
				overview = o
			}
		}
	}

	return ingest.BuildSeedMaterial(overview, commits), nil
}

// splitOwnerRepo extracts "owner", "name" from a github.com URL; returns
// empty strings for a local path or any other host.
func splitOwnerRepo(repo string) (owner, name string) {
	trimmed := strings.TrimSuffix(repo, ".git")
	idx := strings.Index(trimmed, "github.com/")
	if idx == -1 {
		return "", ""
	}
	rest := trimmed[idx+len("github.com/"):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func storyNameFromPromptFile(path string) string {
	base := path
	if idx := strings.LastIndex(base, "/"); idx != -1 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".txt")
	base = strings.TrimSuffix(base, ".md")
	if base == "" {
		return "story"
	}
	return base
}

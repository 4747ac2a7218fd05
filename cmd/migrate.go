package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/narrativeforge/loomwright/internal/embedding"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

var (
	migrateNewModel   string
	migrateDryRun     bool
	migrateSkipClean  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the vector store to a new embedding model's dimension",
	Long: `Migrate probes a new embedding model's output dimension and, if it
differs from the table's current dimension, stages a parallel table,
re-embeds every chunk, and swaps it into place atomically.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateNewModel, "new-model", "", "scheme://name of the new embedding model (required)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "plan the migration without applying it")
	migrateCmd.Flags().BoolVar(&migrateSkipClean, "skip-cleanup", false, "keep the content_chunks_backup table and any leftover migration tables after swap")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateNewModel == "" {
		return fmt.Errorf("--new-model is required")
	}

	ctx := context.Background()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if err := vectorstore.Bootstrap(dsn); err != nil {
		return fmt.Errorf("bootstrapping schema: %w", err)
	}
	vs, err := vectorstore.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer vs.Close()

	newEmbedder, err := embedding.New(embedding.Config{
		Model:   modelNameFromEndpoint(migrateNewModel),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	})
	if err != nil {
		return fmt.Errorf("building new embedding provider: %w", err)
	}

	configuredDim := envIntOr("LOOMWRIGHT_EMBEDDING_DIMENSIONS", 1536)
	runner := vectorstore.NewMigrationRunner(vs, newEmbedder, migrateDryRun, migrateSkipClean)

	plan, err := runner.Run(ctx, configuredDim)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if plan.NoOp {
		fmt.Println("No migration needed")
		return nil
	}
	if migrateDryRun {
		fmt.Printf("Dry run: would migrate from dim %d to dim %d\n", plan.FromDim, plan.ToDim)
		return nil
	}
	fmt.Printf("Migrated content_chunks from dim %d to dim %d\n", plan.FromDim, plan.ToDim)
	return nil
}

// modelNameFromEndpoint accepts either a bare model name or the spec's
// "scheme://name" form, stripping the scheme for the OpenAI-only
// embedding provider.
func modelNameFromEndpoint(endpoint string) string {
	if idx := strings.Index(endpoint, "://"); idx != -1 {
		return endpoint[idx+3:]
	}
	return endpoint
}

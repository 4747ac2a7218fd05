package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loomwright",
	Short: "Loomwright - long-running narrative generation pipeline",
	Long: `Loomwright composes hundreds of LLM calls into a novel-length book.

It ingests a story prompt, builds an outline and entity sheets through a
retrieval-augmented pipeline, then generates chapters one at a time with
idempotent checkpointing so any interrupted run can resume exactly where
it left off.`,
}

// Execute runs the root command.
func Execute() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

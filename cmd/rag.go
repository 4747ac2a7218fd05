package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/narrativeforge/loomwright/internal/chunker"
	"github.com/narrativeforge/loomwright/internal/embedding"
	"github.com/narrativeforge/loomwright/internal/rag"
	"github.com/narrativeforge/loomwright/internal/reranker"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

var (
	ragListStories    bool
	ragStoryID        int
	ragSummary        bool
	ragStats          bool
	ragSearch         string
	ragQuery          string
	ragLimit          int
	ragThreshold      float64
	ragContentType    string
	ragRerank         bool
	ragRerankType     string
	ragRerankStrategy string
	ragInteractive    bool
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Query the RAG index directly",
	Long: `Query the vector store without running the generation pipeline:
list stories, inspect one story's indexed content, or run a similarity
search with optional reranking.`,
	RunE: runRAG,
}

func init() {
	rootCmd.AddCommand(ragCmd)
	ragCmd.Flags().BoolVar(&ragListStories, "list-stories", false, "list every indexed story")
	ragCmd.Flags().IntVar(&ragStoryID, "story", 0, "restrict to this story id")
	ragCmd.Flags().BoolVar(&ragSummary, "summary", false, "print a one-line summary of --story's content")
	ragCmd.Flags().BoolVar(&ragStats, "stats", false, "print chunk counts by content type for --story")
	ragCmd.Flags().StringVar(&ragSearch, "search", "", "run a similarity search across all stories")
	ragCmd.Flags().StringVar(&ragQuery, "query", "", "run a similarity search scoped to --story")
	ragCmd.Flags().IntVar(&ragLimit, "limit", 10, "max results")
	ragCmd.Flags().Float64Var(&ragThreshold, "threshold", 0.7, "minimum similarity")
	ragCmd.Flags().StringVar(&ragContentType, "content-type", "", "restrict search to one content type")
	ragCmd.Flags().BoolVar(&ragRerank, "rerank", false, "rerank search results")
	ragCmd.Flags().StringVar(&ragRerankType, "rerank-type", "rule_based", "rule_based|model_based (not read: --rerank always uses the rule-based reranker)")
	ragCmd.Flags().StringVar(&ragRerankStrategy, "rerank-strategy", "hybrid", "hybrid|keyword|metadata|semantic|cross_encoder")
	ragCmd.Flags().BoolVar(&ragInteractive, "interactive", false, "prompt for queries in a loop")
}

func runRAG(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	vs, err := vectorstore.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer vs.Close()

	switch {
	case ragListStories:
		return ragCmdListStories(ctx, vs)
	case ragSummary && ragStoryID != 0:
		return ragCmdSummary(ctx, vs, ragStoryID)
	case ragStats && ragStoryID != 0:
		return ragCmdStats(ctx, vs, ragStoryID)
	case ragInteractive:
		return ragCmdInteractive(ctx, vs)
	case ragSearch != "":
		return ragCmdSearch(ctx, vs, ragSearch, nil)
	case ragQuery != "":
		return ragCmdSearch(ctx, vs, ragQuery, &ragStoryID)
	default:
		return cmd.Help()
	}
}

func ragCmdListStories(ctx context.Context, vs *vectorstore.Store) error {
	stories, err := vs.ListStories(ctx)
	if err != nil {
		return fmt.Errorf("listing stories: %w", err)
	}
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F780FF"))
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-6s %-30s %s", "ID", "STORY", "PROMPT FILE")))
	for _, s := range stories {
		fmt.Printf("%-6d %-30s %s\n", s.ID, s.StoryName, s.PromptFileName)
	}
	return nil
}

func ragCmdSummary(ctx context.Context, vs *vectorstore.Store, storyID int) error {
	chunks, err := vs.GetStoryContent(ctx, storyID)
	if err != nil {
		return fmt.Errorf("reading story %d content: %w", storyID, err)
	}
	fmt.Printf("story %d: %d indexed chunks\n", storyID, len(chunks))
	return nil
}

func ragCmdStats(ctx context.Context, vs *vectorstore.Store, storyID int) error {
	chunks, err := vs.GetStoryContent(ctx, storyID)
	if err != nil {
		return fmt.Errorf("reading story %d content: %w", storyID, err)
	}
	counts := map[string]int{}
	for _, c := range chunks {
		counts[c.ContentType]++
	}
	for contentType, n := range counts {
		fmt.Printf("%-24s %d\n", contentType, n)
	}
	return nil
}

func ragCmdSearch(ctx context.Context, vs *vectorstore.Store, query string, storyID *int) error {
	embedProvider, err := embedding.New(embedding.Config{
		Model:      envOr("LOOMWRIGHT_EMBEDDING_MODEL", "text-embedding-3-small"),
		Dimensions: envIntOr("LOOMWRIGHT_EMBEDDING_DIMENSIONS", 1536),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		BaseURL:    os.Getenv("OPENAI_BASE_URL"),
	})
	if err != nil {
		return fmt.Errorf("building embedding provider: %w", err)
	}

	var rerankImpl *reranker.Reranker
	if ragRerank {
		rerankImpl = reranker.New(reranker.RuleBasedConfig{}, nil)
	}
	svc := rag.New(embedProvider, vs, rerankImpl, chunker.Options{})
	if storyID != nil && *storyID != 0 {
		svc.UseStory(*storyID)
	}

	opts := rag.SearchOptions{CrossStory: storyID == nil, ContentType: ragContentType, Limit: ragLimit, Threshold: float32(ragThreshold)}

	var results []vectorstore.SearchResult
	if ragRerank {
		results, err = svc.SearchReranked(ctx, query, opts, reranker.Strategy(ragRerankStrategy))
	} else {
		results, err = svc.Search(ctx, query, opts)
	}
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	printSearchResults(results)
	return nil
}

func printSearchResults(results []vectorstore.SearchResult) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	scoreStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD"))
	for i, r := range results {
		preview := r.Content
		if len(preview) > 120 {
			preview = preview[:120] + "..."
		}
		fmt.Printf("%2d. %s %s: %s\n", i+1, scoreStyle.Render(fmt.Sprintf("[%.3f]", r.Similarity)), r.ContentType, preview)
	}
}

func ragCmdInteractive(ctx context.Context, vs *vectorstore.Store) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Enter a query (blank line to exit):")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		if err := ragCmdSearch(ctx, vs, line, nil); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

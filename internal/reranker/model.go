// Package reranker implements the Reranker (C8): optional rescoring of
// retrieved chunks, either by rule-based heuristics or by a cross-encoder
// model, always degrading gracefully to the original similarity ordering.
package reranker

import "sort"

// Strategy names a reranking approach.
type Strategy string

const (
	StrategyHybrid       Strategy = "hybrid"
	StrategyKeyword      Strategy = "keyword"
	StrategyMetadata     Strategy = "metadata"
	StrategySemantic     Strategy = "semantic"
	StrategyCrossEncoder Strategy = "cross_encoder"
)

// Candidate is one retrieved row, decoupled from the vector store's row
// type so this package has no dependency on it.
type Candidate struct {
	ChunkID            int
	ContentType        string
	Content            string
	Metadata           map[string]any
	OriginalSimilarity float64
}

// Result is one reranked row, sorted by RerankedScore descending.
type Result struct {
	Candidate
	RerankedScore float64
	Reason        string
}

func fallbackOrder(candidates []Candidate) []Result {
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		out[i] = Result{Candidate: c, RerankedScore: c.OriginalSimilarity, Reason: "fallback: original similarity score"}
	}
	sortByScoreDesc(out)
	return out
}

func sortByScoreDesc(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankedScore > results[j].RerankedScore
	})
}

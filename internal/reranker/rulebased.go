package reranker

import (
	"fmt"
	"strings"
)

// RuleWeights tunes how the hybrid strategy blends keyword overlap,
// metadata boosts, and the original similarity score. The spec leaves
// exact tuning to implementation discretion; these are reasonable
// defaults for a keyword+similarity blend.
type RuleWeights struct {
	Keyword    float64
	Metadata   float64
	Similarity float64
}

// DefaultRuleWeights is used when a caller doesn't supply its own.
var DefaultRuleWeights = RuleWeights{Keyword: 0.3, Metadata: 0.2, Similarity: 0.5}

// RuleBasedConfig configures one rule-based reranking pass.
type RuleBasedConfig struct {
	Weights RuleWeights
	// MetadataBoosts maps a metadata key=value pair (joined with "=") to an
	// additive boost in [0,1], e.g. "content_type=character_chunk": 0.1.
	MetadataBoosts map[string]float64
}

// RuleBased reranks candidates without any external model, combining
// keyword overlap, metadata boosts, and normalized similarity according to
// strategy.
func RuleBased(query string, candidates []Candidate, strategy Strategy, cfg RuleBasedConfig) []Result {
	if len(candidates) == 0 {
		return nil
	}
	weights := cfg.Weights
	if weights == (RuleWeights{}) {
		weights = DefaultRuleWeights
	}

	queryTerms := tokenize(query)
	out := make([]Result, len(candidates))
	for i, c := range candidates {
		kw := keywordOverlap(queryTerms, tokenize(c.Content))
		md := metadataBoost(c.Metadata, cfg.MetadataBoosts)
		sim := c.OriginalSimilarity

		var score float64
		var reason string
		switch strategy {
		case StrategyKeyword:
			score = kw
			reason = fmt.Sprintf("keyword overlap: %.3f", kw)
		case StrategyMetadata:
			score = md
			reason = fmt.Sprintf("metadata boost: %.3f", md)
		case StrategySemantic:
			score = sim
			reason = fmt.Sprintf("semantic similarity: %.3f", sim)
		default: // hybrid
			score = weights.Keyword*kw + weights.Metadata*md + weights.Similarity*sim
			reason = fmt.Sprintf("hybrid: keyword(%.3f) + metadata(%.3f) + similarity(%.3f)", kw, md, sim)
		}

		out[i] = Result{Candidate: c, RerankedScore: score, Reason: reason}
	}
	sortByScoreDesc(out)
	return out
}

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// keywordOverlap is the Jaccard overlap between query and content tokens.
func keywordOverlap(query, content map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	shared := 0
	for w := range query {
		if content[w] {
			shared++
		}
	}
	union := len(query)
	for w := range content {
		if !query[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func metadataBoost(metadata map[string]any, boosts map[string]float64) float64 {
	if len(boosts) == 0 {
		return 0
	}
	var total float64
	for key, val := range metadata {
		pair := fmt.Sprintf("%s=%v", key, val)
		if boost, ok := boosts[pair]; ok {
			total += boost
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

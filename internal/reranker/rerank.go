package reranker

import "context"

// Reranker unifies the rule-based and model-based variants behind one
// entry point, choosing which to run based on strategy.
type Reranker struct {
	RuleConfig RuleBasedConfig
	Model      *ModelReranker
}

// New builds a Reranker. model may be nil: StrategyCrossEncoder and
// StrategyHybrid then fall back to the hybrid rule-based blend instead of
// erroring, matching the RerankerLoadFailure degrade-gracefully policy.
func New(ruleConfig RuleBasedConfig, model *ModelReranker) *Reranker {
	return &Reranker{RuleConfig: ruleConfig, Model: model}
}

// Rerank dispatches to the model-based reranker for StrategyCrossEncoder
// and StrategyHybrid (when a model is configured), and to the rule-based
// reranker otherwise.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, strategy Strategy) []Result {
	if len(candidates) == 0 {
		return nil
	}
	if r.Model != nil && (strategy == StrategyCrossEncoder || strategy == StrategyHybrid) {
		return r.Model.Rerank(ctx, query, candidates, strategy)
	}
	return RuleBased(query, candidates, strategy, r.RuleConfig)
}

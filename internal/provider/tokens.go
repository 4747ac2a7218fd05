package provider

import (
	"log"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// EstimateTokens counts the tokens a message transcript would consume,
// preferring a real BPE tokenizer and falling back to a word-count
// heuristic when one isn't available for the model.
func EstimateTokens(messages []Message, model string) int {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		total := 0
		for _, m := range messages {
			total += len(enc.Encode(m.Content, nil, nil))
		}
		return total
	}

	words := 0
	for _, m := range messages {
		words += len(strings.Fields(m.Content))
	}
	return int(float64(words)*1.33) + 10*len(messages)
}

// warnOnContextUsage logs at the spec's two thresholds (60% info, 80% warn)
// of the configured context length.
func warnOnContextUsage(estimated, numCtx int, model string) {
	if numCtx <= 0 {
		return
	}
	ratio := float64(estimated) / float64(numCtx)
	switch {
	case ratio >= 0.8:
		log.Printf("[Provider] model %s: estimated %d tokens is %.0f%% of context length %d", model, estimated, ratio*100, numCtx)
	case ratio >= 0.6:
		log.Printf("[Provider] model %s: estimated %d tokens (%.0f%% of context length %d)", model, estimated, ratio*100, numCtx)
	}
}

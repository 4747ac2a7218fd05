package reranker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"
)

// CrossEncoderModel scores (query, document) pairs jointly. A real
// implementation would shell out to or call an inference server hosting a
// cross-encoder; this package only depends on the interface.
type CrossEncoderModel interface {
	Score(ctx context.Context, pairs [][2]string) ([]float64, error)
}

// Loader constructs a CrossEncoderModel; invoked at most once, lazily, on
// the reranker's single-worker pool.
type Loader func() (CrossEncoderModel, error)

const defaultMaxContentChars = 512 * 4 // rough token->char estimate

// ModelReranker wraps a lazily-loaded cross-encoder behind a one-worker
// semaphore, so concurrent callers serialize on inference without
// blocking the rest of the pipeline's scheduler.
type ModelReranker struct {
	loader  Loader
	sem     *semaphore.Weighted
	once    sync.Once
	model   CrossEncoderModel
	loadErr error

	MaxContentChars int
}

// NewModelReranker builds a reranker around loader, deferring model
// construction until the first Rerank call.
func NewModelReranker(loader Loader) *ModelReranker {
	return &ModelReranker{loader: loader, sem: semaphore.NewWeighted(1), MaxContentChars: defaultMaxContentChars}
}

func (m *ModelReranker) ensureLoaded(ctx context.Context) error {
	m.once.Do(func() {
		log.Printf("[Reranker] loading cross-encoder model")
		m.model, m.loadErr = m.loader()
		if m.loadErr != nil {
			log.Printf("[Reranker] failed to load cross-encoder model: %v", m.loadErr)
		}
	})
	return m.loadErr
}

// Rerank scores every candidate against query using the cross-encoder (or
// the 0.7/0.3 hybrid blend with original similarity), falling back to
// original-similarity ordering on load or inference failure.
func (m *ModelReranker) Rerank(ctx context.Context, query string, candidates []Candidate, strategy Strategy) []Result {
	if len(candidates) == 0 {
		return nil
	}

	if err := m.acquireAndLoad(ctx); err != nil {
		log.Printf("[Reranker] falling back to original similarity: %v", err)
		return fallbackOrder(candidates)
	}
	defer m.sem.Release(1)

	pairs := make([][2]string, len(candidates))
	for i, c := range candidates {
		content := c.Content
		if len(content) > m.MaxContentChars {
			content = content[:m.MaxContentChars]
		}
		pairs[i] = [2]string{query, content}
	}

	scores, err := m.model.Score(ctx, pairs)
	if err != nil {
		log.Printf("[Reranker] cross-encoder inference failed, falling back: %v", err)
		return fallbackOrder(candidates)
	}

	out := make([]Result, len(candidates))
	for i, c := range candidates {
		score := scores[i]
		reason := fmt.Sprintf("cross-encoder score: %.3f", score)
		if strategy == StrategyHybrid {
			score = 0.7*score + 0.3*c.OriginalSimilarity
			reason = fmt.Sprintf("hybrid: cross-encoder(%.3f) + similarity(%.3f)", scores[i], c.OriginalSimilarity)
		}
		out[i] = Result{Candidate: c, RerankedScore: score, Reason: reason}
	}
	sortByScoreDesc(out)
	return out
}

func (m *ModelReranker) acquireAndLoad(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring reranker worker: %w", err)
	}
	if err := m.ensureLoaded(ctx); err != nil {
		m.sem.Release(1)
		return err
	}
	return nil
}

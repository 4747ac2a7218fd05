package reranker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	scores  []float64
	err     error
	scoreFn func(pairs [][2]string) ([]float64, error)
}

func (s *stubModel) Score(ctx context.Context, pairs [][2]string) ([]float64, error) {
	if s.scoreFn != nil {
		return s.scoreFn(pairs)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func candidates() []Candidate {
	return []Candidate{
		{ChunkID: 1, Content: "alpha", OriginalSimilarity: 0.2},
		{ChunkID: 2, Content: "beta", OriginalSimilarity: 0.9},
	}
}

func TestModelRerankerDefersLoadingUntilFirstCall(t *testing.T) {
	var loaded int32
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		atomic.AddInt32(&loaded, 1)
		return &stubModel{scores: []float64{0.1, 0.8}}, nil
	})
	assert.Equal(t, int32(0), atomic.LoadInt32(&loaded))

	mr.Rerank(context.Background(), "q", candidates(), StrategyCrossEncoder)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loaded))

	mr.Rerank(context.Background(), "q", candidates(), StrategyCrossEncoder)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loaded), "loader must run at most once")
}

func TestModelRerankerCrossEncoderOrdersByModelScore(t *testing.T) {
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		return &stubModel{scores: []float64{0.1, 0.8}}, nil
	})
	results := mr.Rerank(context.Background(), "q", candidates(), StrategyCrossEncoder)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].ChunkID)
	assert.InDelta(t, 0.8, results[0].RerankedScore, 1e-9)
}

func TestModelRerankerHybridBlendsModelAndOriginalSimilarity(t *testing.T) {
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		return &stubModel{scores: []float64{0.5, 0.5}}, nil
	})
	results := mr.Rerank(context.Background(), "q", candidates(), StrategyHybrid)
	require.Len(t, results, 2)
	byID := map[int]Result{}
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	// 0.7*0.5 + 0.3*0.2 = 0.41 for chunk 1; 0.7*0.5 + 0.3*0.9 = 0.62 for chunk 2.
	assert.InDelta(t, 0.41, byID[1].RerankedScore, 1e-9)
	assert.InDelta(t, 0.62, byID[2].RerankedScore, 1e-9)
}

func TestModelRerankerFallsBackOnLoadFailure(t *testing.T) {
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		return nil, errors.New("model unavailable")
	})
	results := mr.Rerank(context.Background(), "q", candidates(), StrategyCrossEncoder)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].ChunkID) // 0.9 similarity sorts first
	assert.Contains(t, results[0].Reason, "fallback")
}

func TestModelRerankerFallsBackOnInferenceFailure(t *testing.T) {
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		return &stubModel{err: errors.New("inference failed")}, nil
	})
	results := mr.Rerank(context.Background(), "q", candidates(), StrategyCrossEncoder)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Reason, "fallback")
}

func TestModelRerankerTruncatesOverlongContent(t *testing.T) {
	var seenLen int
	longText := make([]byte, 10_000)
	for i := range longText {
		longText[i] = 'a'
	}
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		return &stubModel{scoreFn: func(pairs [][2]string) ([]float64, error) {
			seenLen = len(pairs[0][1])
			return []float64{0.5, 0.5}, nil
		}}, nil
	})
	cands := []Candidate{{ChunkID: 1, Content: string(longText), OriginalSimilarity: 0.1}, {ChunkID: 2, Content: "short", OriginalSimilarity: 0.1}}
	mr.Rerank(context.Background(), "q", cands, StrategyCrossEncoder)
	assert.Equal(t, mr.MaxContentChars, seenLen)
}

func TestRerankerDispatchesByStrategy(t *testing.T) {
	mr := NewModelReranker(func() (CrossEncoderModel, error) {
		return &stubModel{scores: []float64{0.9, 0.1}}, nil
	})
	r := New(RuleBasedConfig{}, mr)

	crossResults := r.Rerank(context.Background(), "alpha", candidates(), StrategyCrossEncoder)
	require.Len(t, crossResults, 2)
	assert.Equal(t, 1, crossResults[0].ChunkID) // model scored chunk 1 higher

	keywordResults := r.Rerank(context.Background(), "alpha", candidates(), StrategyKeyword)
	require.Len(t, keywordResults, 2)
	assert.Equal(t, 1, keywordResults[0].ChunkID) // "alpha" matches candidate 1's content
}

func TestRerankerWithNilModelFallsBackToRuleBased(t *testing.T) {
	r := New(RuleBasedConfig{}, nil)
	results := r.Rerank(context.Background(), "beta", candidates(), StrategyHybrid)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].ChunkID)
}

// Package embedding implements the Embedding Provider (C5): dense-vector
// production for chunk text via an external model, with an authoritative
// runtime dimension check against the configured vector store dimension.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	ErrEmptyTexts      = errors.New("embedding: no texts provided")
	ErrMissingAPIKey   = errors.New("embedding: missing API key")
	ErrEmbeddingFailed = errors.New("embedding: request failed")
)

// Provider produces embeddings and tracks the dimension actually observed
// from the backend, which the vector store treats as authoritative.
type Provider struct {
	client           openai.Client
	model            string
	configuredDim    int
	observedDim      int
	onDimensionDrift func(oldDim, newDim int)
}

// Config configures one Provider.
type Config struct {
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
	// OnDimensionDrift, if set, is invoked whenever the backend's actual
	// dimension disagrees with Dimensions (the EmbeddingMismatch policy:
	// auto-correct and warn). Defaults to a log.Printf warning.
	OnDimensionDrift func(oldDim, newDim int)
}

// New builds a Provider. The API key falls back to standard OpenAI client
// resolution (environment) when empty.
func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding: missing model name")
	}
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	drift := cfg.OnDimensionDrift
	if drift == nil {
		drift = func(oldDim, newDim int) {
			log.Printf("[Embedding] observed dimension %d differs from configured %d; updating configuration", newDim, oldDim)
		}
	}

	return &Provider{
		client:           openai.NewClient(opts...),
		model:            cfg.Model,
		configuredDim:    cfg.Dimensions,
		observedDim:      cfg.Dimensions,
		onDimensionDrift: drift,
	}, nil
}

// Dimension returns the currently-authoritative vector dimension, which
// may have drifted away from the originally-configured value.
func (p *Provider) Dimension() int { return p.observedDim }

// Embed produces one vector per input text, in order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: p.model,
	}
	if p.configuredDim > 0 {
		params.Dimensions = openai.Int(int64(p.configuredDim))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[int(d.Index)] = vec
	}

	if len(vectors) > 0 {
		p.checkDimension(len(vectors[0]))
	}
	return vectors, nil
}

// EmbedSingle embeds exactly one text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// TestConnection performs a minimal embed call to verify reachability.
func (p *Provider) TestConnection(ctx context.Context) bool {
	_, err := p.EmbedSingle(ctx, "connection test")
	return err == nil
}

func (p *Provider) checkDimension(observed int) {
	if observed == 0 || observed == p.observedDim {
		return
	}
	old := p.observedDim
	p.observedDim = observed
	p.onDimensionDrift(old, observed)
}

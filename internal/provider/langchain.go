package provider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// langchainBackend delegates to a langchaingo llms.Model, giving access to
// the broader set of chat backends langchaingo wraps (Bedrock, Vertex,
// Anthropic, etc.) through one adapter rather than a bespoke HTTP client
// per provider.
type langchainBackend struct {
	model llms.Model
}

func newLangchainBackend(host string, params map[string]string) *langchainBackend {
	opts := []openai.Option{}
	if host != "" {
		opts = append(opts, openai.WithBaseURL("http://"+host))
	}
	if key := params["api_key"]; key != "" {
		opts = append(opts, openai.WithToken(key))
	}
	if m := params["model"]; m != "" {
		opts = append(opts, openai.WithModel(m))
	}

	model, err := openai.New(opts...)
	if err != nil {
		// Surfaced on first call rather than at construction time, matching
		// the other variants' lazily-checked backends.
		return &langchainBackend{model: nil}
	}
	return &langchainBackend{model: model}
}

func toLangchainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var typ llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			typ = llms.ChatMessageTypeSystem
		case RoleAssistant:
			typ = llms.ChatMessageTypeAI
		default:
			typ = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(typ, m.Content))
	}
	return out
}

func (b *langchainBackend) chat(ctx context.Context, model string, messages []Message, ro resolvedOptions) (string, error) {
	if b.model == nil {
		return "", fmt.Errorf("%w: langchain backend failed to initialize", ErrProvider)
	}
	resp, err := b.model.GenerateContent(ctx, toLangchainMessages(messages),
		llms.WithTemperature(ro.Temperature),
		llms.WithTopP(ro.TopP),
		llms.WithSeed(ro.Seed),
	)
	if err != nil {
		return "", fmt.Errorf("langchain request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("langchain: no choices returned")
	}
	return resp.Choices[0].Content, nil
}

func (b *langchainBackend) chatStream(ctx context.Context, model string, messages []Message, ro resolvedOptions, onChunk func(string)) (string, error) {
	if b.model == nil {
		return "", fmt.Errorf("%w: langchain backend failed to initialize", ErrProvider)
	}
	var full string
	resp, err := b.model.GenerateContent(ctx, toLangchainMessages(messages),
		llms.WithTemperature(ro.Temperature),
		llms.WithTopP(ro.TopP),
		llms.WithSeed(ro.Seed),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			full += string(chunk)
			onChunk(string(chunk))
			return nil
		}),
	)
	if err != nil {
		return full, fmt.Errorf("langchain stream: %w", err)
	}
	if len(resp.Choices) > 0 && full == "" {
		full = resp.Choices[0].Content
	}
	return full, nil
}

func (b *langchainBackend) available(ctx context.Context, model string) (bool, error) {
	return b.model != nil, nil
}

func (b *langchainBackend) download(ctx context.Context, model string) error {
	return fmt.Errorf("%w: langchain backend does not support model downloads", ErrProvider)
}

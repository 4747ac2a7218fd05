package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openaiCompatBackend serves both hosted OpenAI and any OpenAI-compatible
// HTTP API (vLLM, LM Studio, OpenRouter, ...) reached via a custom base URL.
type openaiCompatBackend struct {
	client openai.Client
}

func newOpenAICompatBackend(baseURL, apiKey string, timeout time.Duration) *openaiCompatBackend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiCompatBackend{client: openai.NewClient(opts...)}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (b *openaiCompatBackend) buildParams(model string, messages []Message, ro resolvedOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(ro.Temperature),
		TopP:        openai.Float(ro.TopP),
		Seed:        openai.Int(int64(ro.Seed)),
	}
	if ro.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (b *openaiCompatBackend) chat(ctx context.Context, model string, messages []Message, ro resolvedOptions) (string, error) {
	completion, err := b.client.Chat.Completions.New(ctx, b.buildParams(model, messages, ro))
	if err != nil {
		return "", fmt.Errorf("openai-compatible request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai-compatible: no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

func (b *openaiCompatBackend) chatStream(ctx context.Context, model string, messages []Message, ro resolvedOptions, onChunk func(string)) (string, error) {
	stream := b.client.Chat.Completions.NewStreaming(ctx, b.buildParams(model, messages, ro))
	defer stream.Close()

	var full string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			full += delta
			onChunk(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return full, fmt.Errorf("openai-compatible stream: %w", err)
	}
	return full, nil
}

func (b *openaiCompatBackend) available(ctx context.Context, model string) (bool, error) {
	page, err := b.client.Models.List(ctx)
	if err != nil {
		return false, fmt.Errorf("openai-compatible models list: %w", err)
	}
	for _, m := range page.Data {
		if m.ID == model {
			return true, nil
		}
	}
	return false, nil
}

func (b *openaiCompatBackend) download(ctx context.Context, model string) error {
	return fmt.Errorf("%w: openai-compatible backend does not support model downloads", ErrProvider)
}

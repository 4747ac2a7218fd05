package provider

import (
	"context"
	"fmt"
	"strings"
)

// MockBackend is a deterministic backend for tests: it returns a fixed
// Response (or a deterministic fallback built from the last user message)
// and records every transcript it was asked to serve.
type MockBackend struct {
	// Response is the fixed text returned by chat/chatStream. If empty, a
	// deterministic response is derived from the prompt.
	Response string

	// Err, if set, is returned instead of a response.
	Err error

	// AvailableResult is returned by available.
	AvailableResult bool

	// LastMessages stores the most recent transcript passed to chat.
	LastMessages []Message

	// StreamChunkSize splits Response into chunks of this size when
	// streaming; 0 streams the whole response in one chunk.
	StreamChunkSize int
}

func newMockBackend() *MockBackend {
	return &MockBackend{AvailableResult: true}
}

// NewMockProvider wraps a MockBackend in a Provider, for callers that want
// the full think-stripping/min-words/JSON-extraction machinery exercised
// against deterministic output.
func NewMockProvider(cfg ModelConfig, backend *MockBackend) *Provider {
	return &Provider{cfg: cfg, backend: backend}
}

func (m *MockBackend) chat(ctx context.Context, model string, messages []Message, ro resolvedOptions) (string, error) {
	m.LastMessages = messages
	if m.Err != nil {
		return "", m.Err
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return generateMockResponse(messages), nil
}

func (m *MockBackend) chatStream(ctx context.Context, model string, messages []Message, ro resolvedOptions, onChunk func(string)) (string, error) {
	text, err := m.chat(ctx, model, messages, ro)
	if err != nil {
		return "", err
	}
	if m.StreamChunkSize <= 0 {
		onChunk(text)
		return text, nil
	}
	for i := 0; i < len(text); i += m.StreamChunkSize {
		end := i + m.StreamChunkSize
		if end > len(text) {
			end = len(text)
		}
		onChunk(text[i:end])
	}
	return text, nil
}

func (m *MockBackend) available(ctx context.Context, model string) (bool, error) {
	return m.AvailableResult, nil
}

func (m *MockBackend) download(ctx context.Context, model string) error {
	return nil
}

// generateMockResponse builds a predictable reply from the last user
// message, so assertions can check it echoes expected content without the
// caller having to pre-configure a fixed Response for every test.
func generateMockResponse(messages []Message) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	words := len(strings.Fields(last))
	return fmt.Sprintf("Mock response to a %d-word prompt: %s", words, truncate(last, 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

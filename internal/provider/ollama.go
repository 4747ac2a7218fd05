package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ollamaBackend talks to a local Ollama daemon's /api/chat endpoint.
type ollamaBackend struct {
	baseURL string
	client  *http.Client
}

func newOllamaBackend(host string, timeout time.Duration) *ollamaBackend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ollamaBackend{
		baseURL: "http://" + host,
		client:  &http.Client{Timeout: timeout},
	}
}

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Seed        int     `json:"seed,omitempty"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type ollamaChatRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Format    string          `json:"format,omitempty"`
	Options   ollamaOptions   `json:"options"`
	KeepAlive int             `json:"keep_alive"`
	Think     bool            `json:"think,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (b *ollamaBackend) buildRequest(model string, messages []Message, ro resolvedOptions, stream bool) ollamaChatRequest {
	msgs := make([]ollamaMessage, len(messages))
	for i, m := range messages {
		msgs[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}
	format := ""
	if ro.JSONMode {
		format = "json"
	}
	return ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
		Format:   format,
		Options: ollamaOptions{
			NumCtx:      ro.NumCtx,
			Seed:        ro.Seed,
			Temperature: ro.Temperature,
			TopP:        ro.TopP,
		},
		KeepAlive: ro.KeepAlive,
		Think:     ro.Thinking,
	}
}

func (b *ollamaBackend) chat(ctx context.Context, model string, messages []Message, ro resolvedOptions) (string, error) {
	reqBody, err := json.Marshal(b.buildRequest(model, messages, ro, false))
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}

func (b *ollamaBackend) chatStream(ctx context.Context, model string, messages []Message, ro resolvedOptions, onChunk func(string)) (string, error) {
	reqBody, err := json.Marshal(b.buildRequest(model, messages, ro, true))
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama stream request: %w", err)
	}
	defer resp.Body.Close()

	var full bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			onChunk(chunk.Message.Content)
		}
		if chunk.Done {
			break
		}
	}
	return full.String(), scanner.Err()
}

func (b *ollamaBackend) available(ctx context.Context, model string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return false, err
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("ollama tags request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decoding ollama tags: %w", err)
	}
	for _, m := range out.Models {
		if m.Name == model {
			return true, nil
		}
	}
	return false, nil
}

func (b *ollamaBackend) download(ctx context.Context, model string) error {
	reqBody, _ := json.Marshal(map[string]string{"name": model})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/pull", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama pull request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ollama pull failed: status %d", resp.StatusCode)
	}
	return nil
}

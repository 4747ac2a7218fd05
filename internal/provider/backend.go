package provider

import (
	"context"
	"fmt"
	"net/url"
)

// backend is the small surface each model-provider variant implements.
// Everything shared across variants -- option resolution, think-tag
// stripping, min-words continuation, JSON extraction, token accounting --
// lives in Provider and is never duplicated per backend.
type backend interface {
	chat(ctx context.Context, model string, messages []Message, ro resolvedOptions) (string, error)
	chatStream(ctx context.Context, model string, messages []Message, ro resolvedOptions, onChunk func(string)) (string, error)
	available(ctx context.Context, model string) (bool, error)
	download(ctx context.Context, model string) error
}

// parsedEndpoint is the decomposed form of a ModelConfig.Endpoint string:
// "scheme://model[@host][?key=val&...]".
type parsedEndpoint struct {
	Scheme string
	Model  string
	Host   string
	Params map[string]string
}

func parseEndpoint(endpoint string) (parsedEndpoint, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return parsedEndpoint{}, fmt.Errorf("%w: invalid endpoint %q: %v", ErrProvider, endpoint, err)
	}
	if u.Scheme == "" {
		return parsedEndpoint{}, fmt.Errorf("%w: endpoint %q missing scheme", ErrProvider, endpoint)
	}

	var model, host string
	if u.User != nil {
		// "scheme://model@host" form.
		model = u.User.Username()
		host = u.Host
	} else {
		// "scheme://model" form, no host: url.Parse put the model in Host.
		model = u.Hostname()
	}

	params := map[string]string{}
	for k, v := range u.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	return parsedEndpoint{Scheme: u.Scheme, Model: model, Host: host, Params: params}, nil
}

// New builds a Provider for the backend variant named by cfg.Endpoint's
// scheme.
func New(cfg ModelConfig) (*Provider, error) {
	pe, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	cfg.Scheme = pe.Scheme
	cfg.Model = pe.Model
	if cfg.Host == "" {
		cfg.Host = pe.Host
	}
	if cfg.Params == nil {
		cfg.Params = pe.Params
	}

	var (
		b             backend
		isLocalDaemon bool
	)
	switch pe.Scheme {
	case "ollama":
		host := cfg.Host
		if host == "" {
			host = "localhost:11434"
		}
		b = newOllamaBackend(host, cfg.Timeout)
		isLocalDaemon = true
	case "openai-compatible", "openai":
		b = newOpenAICompatBackend(cfg.Host, cfg.APIKey, cfg.Timeout)
	case "llama-cpp":
		host := cfg.Host
		if host == "" {
			host = "localhost:8080"
		}
		b = newLlamaCppBackend(host, cfg.Timeout)
		isLocalDaemon = true
	case "langchain":
		b = newLangchainBackend(cfg.Host, cfg.Params)
	case "mock":
		b = newMockBackend()
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", ErrProvider, pe.Scheme)
	}

	return &Provider{cfg: cfg, backend: b, isLocalDaemon: isLocalDaemon}, nil
}

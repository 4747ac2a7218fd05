package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Provider is the uniform facade callers use regardless of which backend
// variant (local daemon, OpenAI-compatible HTTP, embedded server, hosted
// adapter) is actually configured.
type Provider struct {
	cfg           ModelConfig
	backend       backend
	isLocalDaemon bool
}

// GenerateText runs one chat completion to conclusion, applying think-tag
// stripping and, if opts.MinWords is set and the first response falls
// short, a single continuation round.
func (p *Provider) GenerateText(ctx context.Context, messages []Message, opts GenOptions) (string, error) {
	ro := resolveOptions(p.cfg, opts, p.isLocalDaemon)
	p.logTokenEstimate(messages, ro, opts.Debug)

	var raw string
	var err error
	if opts.Stream {
		raw, err = p.backend.chatStream(ctx, p.cfg.Model, messages, ro, func(chunk string) {
			if opts.OnChunk != nil {
				opts.OnChunk(chunk)
			}
		})
	} else {
		raw, err = p.backend.chat(ctx, p.cfg.Model, messages, ro)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	text := StripThink(raw)

	if opts.MinWords > 0 && len(strings.Fields(text)) < opts.MinWords {
		text, err = p.continueGeneration(ctx, messages, text, ro)
		if err != nil {
			return "", err
		}
	}
	return text, nil
}

// continueGeneration issues exactly one follow-up turn asking the model to
// keep going, then stitches the continuation onto the original text.
func (p *Provider) continueGeneration(ctx context.Context, messages []Message, partial string, ro resolvedOptions) (string, error) {
	follow := append(append([]Message{}, messages...),
		Message{Role: RoleAssistant, Content: partial},
		Message{Role: RoleUser, Content: "Continue. Do not repeat what you already wrote."},
	)
	raw, err := p.backend.chat(ctx, p.cfg.Model, follow, ro)
	if err != nil {
		return "", fmt.Errorf("%w: continuation failed: %v", ErrProvider, err)
	}
	cont := StripThink(raw)
	return strings.TrimSpace(partial + "\n\n" + cont), nil
}

var jsonObjectOrArray = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// GenerateJSON requests JSON-mode output and parses it into v, falling
// back to extracting the first {...}/[...] span from the raw response when
// the model wraps its JSON in prose or code fences.
func (p *Provider) GenerateJSON(ctx context.Context, messages []Message, v any, opts GenOptions) error {
	opts.Format = "json"
	text, err := p.GenerateText(ctx, messages, opts)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	match := jsonObjectOrArray.FindString(text)
	if match == "" {
		return fmt.Errorf("%w: no JSON object or array found in response", ErrJSONParse)
	}
	if err := json.Unmarshal([]byte(match), v); err != nil {
		return fmt.Errorf("%w: %v", ErrJSONParse, err)
	}
	return nil
}

// StreamText streams a response chunk by chunk on the returned channel,
// filtering <think> spans as they arrive. The channel is closed when the
// response completes or an error occurs; a terminal error is sent as the
// final StreamChunk.
func (p *Provider) StreamText(ctx context.Context, messages []Message, opts GenOptions) <-chan StreamChunk {
	out := make(chan StreamChunk)
	ro := resolveOptions(p.cfg, opts, p.isLocalDaemon)
	p.logTokenEstimate(messages, ro, opts.Debug)

	go func() {
		defer close(out)
		filter := &thinkFilter{}
		_, err := p.backend.chatStream(ctx, p.cfg.Model, messages, ro, func(chunk string) {
			if opts.OnChunk != nil {
				opts.OnChunk(chunk)
			}
			if visible := filter.Feed(chunk); visible != "" {
				out <- StreamChunk{Text: visible}
			}
		})
		if err != nil {
			out <- StreamChunk{Err: fmt.Errorf("%w: %v", ErrProvider, err)}
		}
	}()
	return out
}

// GenerateMultistepConversation runs a threaded series of turns, each
// appending the previous assistant reply to the transcript before asking
// the next question. It returns every assistant reply in order.
func (p *Provider) GenerateMultistepConversation(ctx context.Context, system string, turns []string, opts GenOptions) ([]string, error) {
	history := []Message{}
	if system != "" {
		history = append(history, Message{Role: RoleSystem, Content: system})
	}

	replies := make([]string, 0, len(turns))
	for _, turn := range turns {
		history = append(history, Message{Role: RoleUser, Content: turn})
		reply, err := p.GenerateText(ctx, history, opts)
		if err != nil {
			return replies, fmt.Errorf("step %d of multistep conversation: %w", len(replies)+1, err)
		}
		history = append(history, Message{Role: RoleAssistant, Content: reply})
		replies = append(replies, reply)
	}
	return replies, nil
}

// IsModelAvailable reports whether the configured model is ready to serve
// requests (pulled locally, reachable, etc. depending on the backend).
func (p *Provider) IsModelAvailable(ctx context.Context) (bool, error) {
	return p.backend.available(ctx, p.cfg.Model)
}

// DownloadModel asks the backend to fetch/pull the configured model if the
// variant supports it.
func (p *Provider) DownloadModel(ctx context.Context) error {
	return p.backend.download(ctx, p.cfg.Model)
}

func (p *Provider) logTokenEstimate(messages []Message, ro resolvedOptions, debug bool) {
	estimated := EstimateTokens(messages, p.cfg.Model)
	if debug {
		log.Printf("[Provider] model %s: %d messages, ~%d tokens", p.cfg.Model, len(messages), estimated)
	}
	warnOnContextUsage(estimated, ro.NumCtx, p.cfg.Model)
}

// Package executor implements the Prompt Executor (C4): the glue every
// pipeline stage flows through, wrapping a provider call with a
// savepoint-store lookup/write and JSON validation.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/narrativeforge/loomwright/internal/promptreg"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

// SavepointStore is the subset of *savepoint.Store the executor depends on.
type SavepointStore interface {
	Has(stepID string) (bool, error)
	Load(stepID string) (savepoint.Value, bool, error)
	Save(stepID string, value savepoint.Value) error
}

// ModelProvider is the subset of *provider.Provider the executor depends
// on.
type ModelProvider interface {
	GenerateText(ctx context.Context, messages []provider.Message, opts provider.GenOptions) (string, error)
	GenerateJSON(ctx context.Context, messages []provider.Message, v any, opts provider.GenOptions) error
}

// Executor bundles the three collaborators a pipeline stage needs, per the
// spec's "stateless function groups taking (context, inputs)" guidance --
// this struct IS that context, not a long-lived stateful manager.
type Executor struct {
	Savepoint SavepointStore
	Prompts   *promptreg.Registry
	Model     ModelProvider
	validate  *validator.Validate
}

// New builds an Executor from its three collaborators.
func New(sp SavepointStore, prompts *promptreg.Registry, model ModelProvider) *Executor {
	return &Executor{Savepoint: sp, Prompts: prompts, Model: model, validate: validator.New()}
}

// Request describes one execute() call. Exactly one of PromptID or
// ConversationHistory should be set; PromptID is resolved through the
// Prompt Registry, ConversationHistory is used verbatim.
type Request struct {
	PromptID            string
	ConversationHistory []provider.Message
	Variables           map[string]string
	SavepointID         string
	SystemMessage       string
	ModelConfig         provider.ModelConfig
	Opts                provider.GenOptions
	ExpectJSON          bool
	// JSONSchema, if non-nil, is validated against the parsed JSON result
	// using struct tags (go-playground/validator).
	JSONSchema any
}

// Result is the sole return type callers examine.
type Result struct {
	Content    string
	JSONParsed bool
	JSONErrors []string
}

var jsonSpan = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// Execute runs the spec's six-step algorithm: savepoint hit short-circuits
// everything else; on miss, the configured prompt/transcript is sent to
// the model, JSON is validated with extraction fallback, and the result
// is written to the savepoint before returning.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if req.SavepointID != "" {
		if ok, err := e.Savepoint.Has(req.SavepointID); err != nil {
			return Result{}, fmt.Errorf("checking savepoint %q: %w", req.SavepointID, err)
		} else if ok {
			val, _, err := e.Savepoint.Load(req.SavepointID)
			if err != nil {
				return Result{}, fmt.Errorf("loading savepoint %q: %w", req.SavepointID, err)
			}
			return Result{Content: val.AsText(), JSONParsed: true}, nil
		}
	}

	messages, err := e.buildMessages(req)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if req.ExpectJSON {
		result, err = e.executeJSON(ctx, messages, req)
	} else {
		content, genErr := e.Model.GenerateText(ctx, messages, req.Opts)
		result, err = Result{Content: content}, genErr
	}
	if err != nil {
		return Result{}, err
	}

	if req.SavepointID != "" {
		if err := e.Savepoint.Save(req.SavepointID, savepoint.String(result.Content)); err != nil {
			return Result{}, fmt.Errorf("saving savepoint %q: %w", req.SavepointID, err)
		}
	}
	return result, nil
}

func (e *Executor) buildMessages(req Request) ([]provider.Message, error) {
	var messages []provider.Message
	if req.SystemMessage != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: req.SystemMessage})
	}

	if req.ConversationHistory != nil {
		messages = append(messages, req.ConversationHistory...)
		return messages, nil
	}

	text, err := e.Prompts.Load(req.PromptID, req.Variables)
	if err != nil {
		return nil, fmt.Errorf("building messages for prompt %q: %w", req.PromptID, err)
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: text})
	return messages, nil
}

func (e *Executor) executeJSON(ctx context.Context, messages []provider.Message, req Request) (Result, error) {
	raw := map[string]any{}
	opts := req.Opts
	err := e.Model.GenerateJSON(ctx, messages, &raw, opts)
	if err != nil {
		// GenerateJSON already attempted extraction internally; surface a
		// non-fatal result so the caller can inspect json_errors instead of
		// aborting the stage.
		content, textErr := e.Model.GenerateText(ctx, messages, opts)
		if textErr != nil {
			return Result{}, textErr
		}
		return e.recoverJSON(content, err)
	}

	b, marshalErr := json.Marshal(raw)
	if marshalErr != nil {
		return Result{}, fmt.Errorf("re-marshaling generated JSON: %w", marshalErr)
	}
	content := string(b)

	if req.JSONSchema != nil {
		if err := json.Unmarshal(b, req.JSONSchema); err != nil {
			return e.recoverJSON(content, err)
		}
		if err := e.validate.Struct(req.JSONSchema); err != nil {
			return e.recoverJSON(content, err)
		}
	}
	return Result{Content: content, JSONParsed: true}, nil
}

// recoverJSON implements step 4's regex-extraction fallback: locate the
// first {...} or [...] span in raw text and accept it if it parses.
func (e *Executor) recoverJSON(raw string, cause error) (Result, error) {
	match := jsonSpan.FindString(raw)
	if match == "" {
		return Result{Content: raw, JSONParsed: false, JSONErrors: []string{cause.Error()}}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(match), &v); err != nil {
		return Result{Content: raw, JSONParsed: false, JSONErrors: []string{cause.Error(), err.Error()}}, nil
	}
	return Result{Content: match, JSONParsed: true}, nil
}

// StripCodeFences removes a leading/trailing ```json or ``` fence, a
// common model habit this executor's callers (recap formatting, outline
// JSON steps) need to undo before extraction.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.SplitN(s, "\n", 2)
	if len(lines) < 2 {
		return s
	}
	s = lines[1]
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Package entity implements the Character and Setting Managers (C10): two
// structurally identical pipelines — extract names, generate a sheet plus
// a fixed set of focused chunks via a multi-step conversation, index each
// chunk into RAG, and revise sheets as new chapters arrive. A Manager is
// parameterized by Kind so the two managers share one implementation, the
// way the spec's §4.10 describes settings as "structurally identical"
// to characters.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/rag"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

// Kind distinguishes characters from settings: the chunk taxonomy and
// savepoint prefix differ; the pipeline shape does not.
type Kind struct {
	// Prefix is the savepoint directory ("characters" or "settings").
	Prefix string
	// ContentType stamps RAG metadata ("character_chunk"/"setting_chunk").
	ContentType string
	// Chunks names the focused follow-up turns, in generation order.
	Chunks []string
	// ExtractPromptID asks the model for entity names from prose.
	ExtractPromptID string
	// SheetPromptID produces the initial full sheet (turn 1).
	SheetPromptID string
	// ChunkPromptIDPrefix + chunk name resolves each follow-up prompt,
	// e.g. "characters/chunks/personality".
	ChunkPromptIDPrefix string
	// RevisePromptID regenerates a sheet given new chapter content.
	RevisePromptID string
	// SummaryPromptID synthesizes a short summary from a subset of chunks.
	SummaryPromptID string
	// SummaryChunks names the chunks fed into summary generation.
	SummaryChunks []string
}

// Character is the C10 chunk taxonomy from §3's Data Model.
var Character = Kind{
	Prefix:              "characters",
	ContentType:         rag.ContentTypeCharacter,
	Chunks:              []string{"personality", "background", "motivations", "relationships", "skills", "current_state", "growth_arc"},
	ExtractPromptID:     "characters/extract_names",
	SheetPromptID:       "characters/sheet",
	ChunkPromptIDPrefix: "characters/chunks/",
	RevisePromptID:      "characters/revise_sheet",
	SummaryPromptID:     "characters/summary",
	SummaryChunks:       []string{"personality", "motivations", "current_state"},
}

// Setting is the C10 chunk taxonomy for settings.
var Setting = Kind{
	Prefix:              "settings",
	ContentType:         rag.ContentTypeSetting,
	Chunks:              []string{"physical_description", "history_background", "function_purpose", "atmosphere_mood", "rules_constraints", "connections_relationships"},
	ExtractPromptID:     "settings/extract_names",
	SheetPromptID:       "settings/sheet",
	ChunkPromptIDPrefix: "settings/chunks/",
	RevisePromptID:      "settings/revise_sheet",
	SummaryPromptID:     "settings/summary",
	SummaryChunks:       []string{"atmosphere_mood", "function_purpose"},
}

const maxExtractedNames = 10

// RAGIndexer is the slice of the RAG Service a Manager depends on.
type RAGIndexer interface {
	Index(ctx context.Context, text, contentType string, metadata map[string]any) ([]int, error)
}

// Manager drives one entity class (characters or settings) for one story.
// It holds no story-specific state of its own — the savepoint store and
// RAG service it's built with already carry that — matching the spec's
// "stateless function groups taking (context, inputs)" guidance.
type Manager struct {
	Kind  Kind
	Exec  *executor.Executor
	Model provider.ModelConfig
	RAG   RAGIndexer
}

// New builds a Manager for the given Kind.
func New(kind Kind, exec *executor.Executor, model provider.ModelConfig, ragSvc RAGIndexer) *Manager {
	return &Manager{Kind: kind, Exec: exec, Model: model, RAG: ragSvc}
}

// ExtractNames asks the model for the entity names present in text,
// falling back to line parsing when the model doesn't return valid JSON,
// de-duplicating case-insensitively and capping at 10.
func (m *Manager) ExtractNames(ctx context.Context, text string, savepointID string) ([]string, error) {
	res, err := m.Exec.Execute(ctx, executor.Request{
		PromptID:    m.Kind.ExtractPromptID,
		Variables:   map[string]string{"text": text},
		SavepointID: savepointID,
		ModelConfig: m.Model,
		ExpectJSON:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("entity: extract names: %w", err)
	}

	var names []string
	if res.JSONParsed {
		var raw []string
		if json.Unmarshal([]byte(res.Content), &raw) == nil {
			names = raw
		}
	}
	if names == nil {
		names = parseNameLines(res.Content)
	}
	return dedupeCap(names, maxExtractedNames), nil
}

func parseNameLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. )")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func dedupeCap(names []string, cap int) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
		if len(out) == cap {
			break
		}
	}
	return out
}

// GenerateSheet runs the multi-step conversation for one entity: turn 1
// produces the full sheet, turns 2..N each produce one focused chunk as a
// sibling continuation of the sheet transcript (not a descendant of the
// previous chunk), and every chunk is indexed into RAG immediately after
// it's written to its savepoint.
func (m *Manager) GenerateSheet(ctx context.Context, name string, variables map[string]string) error {
	base := fmt.Sprintf("%s/%s", m.Kind.Prefix, sanitizeName(name))
	sheetVars := withName(variables, name)

	sheetRes, err := m.Exec.Execute(ctx, executor.Request{
		PromptID:    m.Kind.SheetPromptID,
		Variables:   sheetVars,
		SavepointID: base + "/sheet",
		ModelConfig: m.Model,
	})
	if err != nil {
		return fmt.Errorf("entity: generate sheet for %q: %w", name, err)
	}

	sheetPrompt, err := m.Exec.Prompts.Load(m.Kind.SheetPromptID, sheetVars)
	if err != nil {
		return fmt.Errorf("entity: render sheet prompt for %q: %w", name, err)
	}
	baseTranscript := []provider.Message{
		{Role: provider.RoleUser, Content: sheetPrompt},
		{Role: provider.RoleAssistant, Content: sheetRes.Content},
	}

	for _, chunkName := range m.Kind.Chunks {
		if err := m.generateChunk(ctx, name, base, chunkName, baseTranscript, sheetVars); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) generateChunk(ctx context.Context, name, base, chunkName string, baseTranscript []provider.Message, variables map[string]string) error {
	savepointID := base + "/" + chunkName
	followUp, err := m.Exec.Prompts.Load(m.Kind.ChunkPromptIDPrefix+chunkName, variables)
	if err != nil {
		return fmt.Errorf("entity: render %s follow-up for %q: %w", chunkName, name, err)
	}
	// Each chunk's conversation is a COPY of the base transcript plus its
	// own follow-up, so chunks are siblings, never descendants of one
	// another.
	transcript := append(append([]provider.Message{}, baseTranscript...),
		provider.Message{Role: provider.RoleUser, Content: followUp})

	res, err := m.Exec.Execute(ctx, executor.Request{
		ConversationHistory: transcript,
		SavepointID:         savepointID,
		ModelConfig:         m.Model,
	})
	if err != nil {
		return fmt.Errorf("entity: generate %s chunk for %q: %w", chunkName, name, err)
	}

	if m.RAG != nil {
		meta := map[string]any{
			"entity_name":      name,
			"character_name":   name,
			"chunk_type":       chunkName,
			"generation_stage": "outline",
		}
		if _, err := m.RAG.Index(ctx, res.Content, m.Kind.ContentType, meta); err != nil {
			return fmt.Errorf("entity: index %s chunk for %q: %w", chunkName, name, err)
		}
	}
	return nil
}

// ReviseSheet is §4.10 step 3: given a chapter's new content, regenerate
// the entity's sheet and save it back to the same savepoint path.
func (m *Manager) ReviseSheet(ctx context.Context, sp *savepoint.Store, name, chapterContent string) error {
	base := fmt.Sprintf("%s/%s", m.Kind.Prefix, sanitizeName(name))

	existing, found, err := sp.Load(base + "/sheet")
	if err != nil {
		return fmt.Errorf("entity: load sheet for %q: %w", name, err)
	}
	if !found {
		// Fall back to the first chunk as a stand-in for the missing
		// sheet, per §4.10 step 3's "personality chunk as fallback".
		existing, found, err = sp.Load(base + "/" + m.Kind.Chunks[0])
		if err != nil {
			return fmt.Errorf("entity: load fallback chunk for %q: %w", name, err)
		}
	}
	existingText := ""
	if found {
		existingText = existing.AsText()
	}

	res, err := m.Exec.Execute(ctx, executor.Request{
		PromptID: m.Kind.RevisePromptID,
		Variables: map[string]string{
			"name":            name,
			"existing_sheet":  existingText,
			"chapter_content": chapterContent,
		},
		SavepointID: base + "/sheet",
		ModelConfig: m.Model,
	})
	if err != nil {
		return fmt.Errorf("entity: revise sheet for %q: %w", name, err)
	}
	log.Printf("[Entity] revised %s sheet for %q (%d chars)", m.Kind.Prefix, name, len(res.Content))
	return nil
}

// Summaries renders a compact prompt-injection block for the given
// entity names: one synthesized summary per name, separated by horizontal
// rules. Names without any sheet material are skipped.
func (m *Manager) Summaries(ctx context.Context, sp *savepoint.Store, names []string) (string, error) {
	sorted := append([]string{}, names...)
	sort.Strings(sorted)

	var parts []string
	for _, name := range sorted {
		base := fmt.Sprintf("%s/%s", m.Kind.Prefix, sanitizeName(name))
		vars := map[string]string{"name": name}
		hasMaterial := false
		for _, chunkName := range m.Kind.SummaryChunks {
			v, found, err := sp.Load(base + "/" + chunkName)
			if err != nil {
				return "", fmt.Errorf("entity: load %s for summary of %q: %w", chunkName, name, err)
			}
			if found {
				vars[chunkName] = v.AsText()
				hasMaterial = true
			}
		}
		if !hasMaterial {
			continue
		}

		res, err := m.Exec.Execute(ctx, executor.Request{
			PromptID:    m.Kind.SummaryPromptID,
			Variables:   vars,
			SavepointID: base + "/summary",
			ModelConfig: m.Model,
		})
		if err != nil {
			return "", fmt.Errorf("entity: summarize %q: %w", name, err)
		}
		parts = append(parts, fmt.Sprintf("**%s**: %s", name, res.Content))
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

func withName(variables map[string]string, name string) map[string]string {
	out := make(map[string]string, len(variables)+1)
	for k, v := range variables {
		out[k] = v
	}
	out["name"] = name
	return out
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	return name
}

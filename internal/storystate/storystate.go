// Package storystate implements the Story State Manager (C14): an
// evolving state record, kept as the savepoint "story_state", tracking direction, characters, plot threads, and
// per-chapter state, with RAG-driven introspection questions answered
// about each just-completed chapter rather than by re-reading its full
// content. Used only by the progressive-planning path; the primary
// pipeline bypasses it entirely, per §4.14.
package storystate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/rag"
	"github.com/narrativeforge/loomwright/internal/savepoint"
	"github.com/narrativeforge/loomwright/internal/vectorstore"
)

const savepointID = "story_state"

// Context is the evolving high-level direction of the story.
type Context struct {
	Direction string   `json:"direction"`
	Themes    []string `json:"themes"`
	Tone      string   `json:"tone"`
	Pacing    string   `json:"pacing"`
	// Tension is 1-10, per the spec's StoryContext definition.
	Tension int `json:"tension"`
}

// CharacterState tracks one character's evolving role in the story.
type CharacterState struct {
	Developments []string `json:"developments"`
	LastUpdated  int      `json:"last_updated_chapter"`
}

// PlotThread tracks one ongoing plot thread.
type PlotThread struct {
	Summary      string `json:"summary"`
	Status       string `json:"status"`
	LastAdvanced int    `json:"last_advanced_chapter"`
}

// ChapterState is the per-chapter slice of the sidecar.
type ChapterState struct {
	Number              int      `json:"number"`
	CharacterDevelopments []string `json:"character_developments"`
	PlotAdvancements    []string `json:"plot_advancements"`
	NewThemes           []string `json:"new_themes"`
	TensionShift        int      `json:"tension_shift"`
	WorldDevelopments   []string `json:"world_developments"`
}

// EvolutionEntry is one append-only log line describing a mutation.
type EvolutionEntry struct {
	Chapter   int    `json:"chapter"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
}

// State is the full record persisted through the savepoint store under the
// step id "story_state" (story_state.md, with the state as structured
// frontmatter data); no story_state.json file is written.
type State struct {
	Context     Context                   `json:"context"`
	Characters  map[string]CharacterState `json:"characters"`
	PlotThreads map[string]PlotThread     `json:"plot_threads"`
	Chapters    map[string]ChapterState   `json:"chapters"`
	Evolution   []EvolutionEntry          `json:"evolution"`
}

// New returns an empty State with its maps initialized.
func New() *State {
	return &State{
		Characters:  make(map[string]CharacterState),
		PlotThreads: make(map[string]PlotThread),
		Chapters:    make(map[string]ChapterState),
	}
}

// RAGSearcher is the slice of the RAG Service introspection needs: it
// answers each axis question by retrieving relevant chunks rather than
// by re-reading the chapter's full content.
type RAGSearcher interface {
	Search(ctx context.Context, query string, opts rag.SearchOptions) ([]vectorstore.SearchResult, error)
}

// IntrospectionAxes is the five fixed questions §4.14 asks about a
// just-completed chapter, rather than re-reading its content directly.
var IntrospectionAxes = []string{
	"character_developments",
	"plot_advancements",
	"new_themes",
	"tension_shifts",
	"world_developments",
}

var introspectionPrompts = map[string]string{
	"character_developments": "storystate/introspect/character_developments",
	"plot_advancements":      "storystate/introspect/plot_advancements",
	"new_themes":             "storystate/introspect/new_themes",
	"tension_shifts":         "storystate/introspect/tension_shifts",
	"world_developments":     "storystate/introspect/world_developments",
}

// Manager mutates a State using an Executor for introspection prompts.
type Manager struct {
	Exec  *executor.Executor
	Model provider.ModelConfig
}

// NewManager builds a Manager.
func NewManager(exec *executor.Executor, model provider.ModelConfig) *Manager {
	return &Manager{Exec: exec, Model: model}
}

// Load reads the "story_state" savepoint, returning a fresh
// State if it doesn't exist yet.
func (m *Manager) Load(sp *savepoint.Store) (*State, error) {
	v, found, err := sp.Load(savepointID)
	if err != nil {
		return nil, fmt.Errorf("storystate: load: %w", err)
	}
	if !found {
		return New(), nil
	}
	b, err := json.Marshal(v.Structured)
	if err != nil {
		return nil, fmt.Errorf("storystate: re-marshal loaded state: %w", err)
	}
	st := New()
	if err := json.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("storystate: unmarshal: %w", err)
	}
	return st, nil
}

// Save re-serializes the full state, per §4.14's "re-serialized on every
// change" rule -- the object is small (<200KB) so a partial diff isn't
// worth the complexity.
func (m *Manager) Save(sp *savepoint.Store, st *State) error {
	var raw map[string]any
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("storystate: marshal: %w", err)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("storystate: round-trip to map: %w", err)
	}
	if err := sp.Save(savepointID, savepoint.Struct(raw)); err != nil {
		return fmt.Errorf("storystate: save: %w", err)
	}
	return nil
}

// Introspect asks the five fixed introspection questions about a
// just-completed chapter and folds the parsed bullet lists into a
// ChapterState, appending an evolution log entry.
func (m *Manager) Introspect(ctx context.Context, st *State, chapterNumber int, searcher RAGSearcher, timestamp string) error {
	cs := ChapterState{Number: chapterNumber}

	for _, axis := range IntrospectionAxes {
		items, err := m.askAxis(ctx, axis, chapterNumber, searcher)
		if err != nil {
			return fmt.Errorf("storystate: introspect %s: %w", axis, err)
		}
		switch axis {
		case "character_developments":
			cs.CharacterDevelopments = items
		case "plot_advancements":
			cs.PlotAdvancements = items
		case "new_themes":
			cs.NewThemes = items
		case "tension_shifts":
			cs.TensionShift = parseTensionShift(items)
		case "world_developments":
			cs.WorldDevelopments = items
		}
	}

	key := fmt.Sprintf("%d", chapterNumber)
	st.Chapters[key] = cs
	st.Evolution = append(st.Evolution, EvolutionEntry{
		Chapter:   chapterNumber,
		Event:     "chapter_introspected",
		Timestamp: timestamp,
	})
	return nil
}

func (m *Manager) askAxis(ctx context.Context, axis string, chapterNumber int, searcher RAGSearcher) ([]string, error) {
	promptID, ok := introspectionPrompts[axis]
	if !ok {
		return nil, fmt.Errorf("unknown introspection axis %q", axis)
	}

	retrieved := ""
	if searcher != nil {
		results, err := searcher.Search(ctx, axis, rag.SearchOptions{
			ContentType:     "chapter_content",
			MetadataFilters: map[string]any{"chapter_number": chapterNumber},
			Limit:           5,
			Threshold:       0.5,
		})
		if err != nil {
			return nil, fmt.Errorf("search for %s: %w", axis, err)
		}
		snippets := make([]string, len(results))
		for i, r := range results {
			snippets[i] = r.Content
		}
		retrieved = strings.Join(snippets, "\n\n")
	}

	res, err := m.Exec.Execute(ctx, executor.Request{
		PromptID:    promptID,
		Variables:   map[string]string{"chapter_number": fmt.Sprintf("%d", chapterNumber), "context": retrieved},
		SavepointID: fmt.Sprintf("chapter_%d/introspection/%s", chapterNumber, axis),
		ModelConfig: m.Model,
	})
	if err != nil {
		return nil, err
	}
	return parseBullets(res.Content), nil
}

// parseBullets splits a model response into its bullet items, accepting
// "-", "*", and numbered list markers.
func parseBullets(text string) []string {
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

func parseTensionShift(items []string) int {
	for _, item := range items {
		n := 0
		negative := false
		matched := false
		for _, c := range item {
			if c == '-' && !matched {
				negative = true
				continue
			}
			if c < '0' || c > '9' {
				if matched {
					break
				}
				continue
			}
			matched = true
			n = n*10 + int(c-'0')
		}
		if matched {
			if negative {
				n = -n
			}
			return n
		}
	}
	return 0
}

// Now returns a timestamp string for an evolution entry. Callers on the
// hot path should pass a real clock; tests pass a fixed value since
// workflow scripts and deterministic replay forbid wall-clock reads deep
// in library code.
func Now() string { return time.Now().UTC().Format(time.RFC3339) }

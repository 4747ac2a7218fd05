// Package recap implements the Recap Engine (C11): per-chapter event
// extraction, temporal classification, and aging/importance filtering,
// producing the compact JSON "memory" passed to the next chapter.
package recap

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/narrativeforge/loomwright/internal/executor"
	"github.com/narrativeforge/loomwright/internal/provider"
	"github.com/narrativeforge/loomwright/internal/savepoint"
)

const dateLayout = "2006-01-02"

// DefaultMaxEventAgeDays is the spec's default aging threshold.
const DefaultMaxEventAgeDays = 30

// Event is one entry of a recap's event list.
type Event struct {
	Description    string   `json:"description"`
	DateStart      string   `json:"date_start,omitempty"`
	DateEnd        string   `json:"date_end,omitempty"`
	Importance     string   `json:"importance,omitempty"`
	Characters     []string `json:"characters,omitempty"`
	Locations      []string `json:"locations,omitempty"`
	SymbolsMotifs  []string `json:"symbols_motifs,omitempty"`
	ChapterContext string   `json:"chapter_context,omitempty"`
}

const (
	ImportanceHigh   = "high"
	ImportanceMedium = "medium"
	ImportanceLow    = "low"
)

// Meta summarizes the event list.
type Meta struct {
	LatestEventDate string `json:"latest_event_date,omitempty"`
	TotalEvents     int    `json:"total_events"`
}

// Timeline buckets events by how recently they happened.
type Timeline struct {
	Events []Event `json:"events"`
}

// Document is the canonical recap shape produced by step 4 and consumed
// by the next chapter's outline generation.
type Document struct {
	Meta            Meta `json:"meta"`
	EventsByTimeline struct {
		Current   Timeline `json:"current"`
		Recent    Timeline `json:"recent_events"`
		Historical Timeline `json:"historical"`
	} `json:"events_by_timeline"`
}

// Engine runs the recap pipeline for one chapter at a time.
type Engine struct {
	Exec             *executor.Executor
	Model            provider.ModelConfig
	MaxEventAgeDays  int
	MultiStageSanitize bool
}

// New builds an Engine. maxEventAgeDays of 0 uses DefaultMaxEventAgeDays.
func New(exec *executor.Executor, model provider.ModelConfig, maxEventAgeDays int) *Engine {
	if maxEventAgeDays <= 0 {
		maxEventAgeDays = DefaultMaxEventAgeDays
	}
	return &Engine{Exec: exec, Model: model, MaxEventAgeDays: maxEventAgeDays}
}

// Generate runs the four-step prose pipeline plus the programmatic
// filtering pass for one chapter, saving the final JSON recap to
// "chapter_<N>/recap". On any stage failure, it falls back to the
// existing recap savepoint (if any), else an empty string, rather than
// aborting the run.
func (e *Engine) Generate(ctx context.Context, chapterNumber int, chapterContent, previousRecap, storyStartDate string) (string, error) {
	savepointID := fmt.Sprintf("chapter_%d/recap", chapterNumber)

	content, err := e.run(ctx, chapterNumber, chapterContent, previousRecap, storyStartDate)
	if err != nil {
		log.Printf("[Recap] chapter %d: generation failed, falling back to existing savepoint: %v", chapterNumber, err)
		if existing, found, loadErr := e.Exec.Savepoint.Load(savepointID); loadErr == nil && found {
			return existing.AsText(), nil
		}
		return "", nil
	}
	return content, nil
}

func (e *Engine) run(ctx context.Context, chapterNumber int, chapterContent, previousRecap, storyStartDate string) (string, error) {
	savepointID := fmt.Sprintf("chapter_%d/recap", chapterNumber)
	base := fmt.Sprintf("chapter_%d/recap_stages", chapterNumber)

	extracted, err := e.Exec.Execute(ctx, executor.Request{
		PromptID:    "recap/extract_events",
		Variables:   map[string]string{"chapter_content": chapterContent},
		SavepointID: base + "/extracted",
		ModelConfig: e.Model,
	})
	if err != nil {
		return "", fmt.Errorf("recap: extract events: %w", err)
	}

	timed, err := e.Exec.Execute(ctx, executor.Request{
		PromptID: "recap/assign_timing",
		Variables: map[string]string{
			"events":            extracted.Content,
			"story_start_date":  storyStartDate,
			"previous_recap":    previousRecap,
		},
		SavepointID: base + "/timed",
		ModelConfig: e.Model,
	})
	if err != nil {
		return "", fmt.Errorf("recap: assign timing: %w", err)
	}

	enriched, err := e.Exec.Execute(ctx, executor.Request{
		PromptID:    "recap/enrich_details",
		Variables:   map[string]string{"events": timed.Content},
		SavepointID: base + "/enriched",
		ModelConfig: e.Model,
	})
	if err != nil {
		return "", fmt.Errorf("recap: enrich details: %w", err)
	}

	formatted, err := e.Exec.Execute(ctx, executor.Request{
		PromptID:    "recap/format_json",
		Variables:   map[string]string{"events": enriched.Content},
		SavepointID: base + "/formatted",
		ModelConfig: e.Model,
		ExpectJSON:  true,
	})
	if err != nil {
		return "", fmt.Errorf("recap: format json: %w", err)
	}

	doc, err := parseLoose(formatted.Content)
	if err != nil {
		return "", fmt.Errorf("recap: parse formatted document: %w", err)
	}

	filtered := e.Filter(doc, storyStartDate)
	if e.MultiStageSanitize {
		filtered = classifyByAge(filtered)
	}

	b, err := json.Marshal(filtered)
	if err != nil {
		return "", fmt.Errorf("recap: marshal filtered document: %w", err)
	}
	content := string(b)

	if err := e.Exec.Savepoint.Save(savepointID, savepoint.String(content)); err != nil {
		return "", fmt.Errorf("recap: save %q: %w", savepointID, err)
	}
	return content, nil
}

// parseLoose decodes a recap document that may arrive wrapped in markdown
// fences or prose, per step 4's fallback: strip fences, extract the first
// {...}.
func parseLoose(raw string) (Document, error) {
	cleaned := executor.StripCodeFences(raw)
	var doc Document
	if err := json.Unmarshal([]byte(cleaned), &doc); err == nil {
		return doc, nil
	}

	// Flat fallback: the model may have returned a bare events array
	// instead of the full {meta, events_by_timeline} envelope.
	var flat []Event
	if err := json.Unmarshal([]byte(cleaned), &flat); err == nil {
		doc.EventsByTimeline.Current.Events = flat
		return recomputeMeta(doc), nil
	}

	// Prose fallback: decode the span from the first "{" to the last "}".
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &doc); err == nil {
			return doc, nil
		}
	}
	return Document{}, fmt.Errorf("could not parse recap document: no valid JSON found")
}

func recomputeMeta(doc Document) Document {
	all := allEvents(doc)
	doc.Meta = Meta{TotalEvents: len(all), LatestEventDate: maxDate(all)}
	return doc
}

func allEvents(doc Document) []Event {
	var all []Event
	all = append(all, doc.EventsByTimeline.Current.Events...)
	all = append(all, doc.EventsByTimeline.Recent.Events...)
	all = append(all, doc.EventsByTimeline.Historical.Events...)
	return all
}

func maxDate(events []Event) string {
	var max time.Time
	var maxStr string
	for _, ev := range events {
		t, err := time.Parse(dateLayout, ev.DateStart)
		if err != nil {
			continue
		}
		if max.IsZero() || t.After(max) {
			max = t
			maxStr = ev.DateStart
		}
	}
	return maxStr
}

// Filter implements §4.11 step 5: the programmatic (non-model) aging and
// importance pass. Every surviving event has importance "high" and has
// its date_start/date_end/symbols_motifs/importance/chapter_context
// fields stripped.
func (e *Engine) Filter(doc Document, storyStartDate string) Document {
	all := allEvents(doc)
	currentDate := maxDate(all)
	if currentDate == "" {
		currentDate = storyStartDate
	}
	ref, err := time.Parse(dateLayout, currentDate)
	if err != nil {
		ref = time.Time{}
	}

	kept := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.Importance != ImportanceHigh {
			continue
		}
		if !ref.IsZero() && ev.DateStart != "" {
			t, perr := time.Parse(dateLayout, ev.DateStart)
			if perr == nil && ref.Sub(t) > time.Duration(e.MaxEventAgeDays)*24*time.Hour {
				continue
			}
		}
		kept = append(kept, Event{
			Description: ev.Description,
			Characters:  ev.Characters,
			Locations:   ev.Locations,
		})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Description < kept[j].Description })

	var out Document
	out.EventsByTimeline.Current.Events = kept
	out.Meta = Meta{TotalEvents: len(kept), LatestEventDate: currentDate}
	return out
}

// classifyByAge is the optional multi-stage sanitizer: tag each event
// current/recent/historical relative to the max event date and bucket it
// into the matching timeline section.
func classifyByAge(doc Document) Document {
	all := allEvents(doc)
	ref, err := time.Parse(dateLayout, doc.Meta.LatestEventDate)
	if err != nil {
		doc.EventsByTimeline.Current.Events = all
		return doc
	}

	var out Document
	out.Meta = doc.Meta
	for _, ev := range all {
		t, perr := time.Parse(dateLayout, ev.DateStart)
		switch {
		case perr != nil || !t.Before(ref):
			out.EventsByTimeline.Current.Events = append(out.EventsByTimeline.Current.Events, ev)
		case ref.Sub(t) <= 7*24*time.Hour:
			out.EventsByTimeline.Recent.Events = append(out.EventsByTimeline.Recent.Events, ev)
		default:
			out.EventsByTimeline.Historical.Events = append(out.EventsByTimeline.Historical.Events, ev)
		}
	}
	return out
}

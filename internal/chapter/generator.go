package chapter

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/narrativeforge/loomwright/internal/executor"
)

// GenerateBook runs the chapter pipeline for chapters 1..maxChapters in
// order. Chapter N+1's outline generation never begins before chapter N's
// recap is saved, per §5's ordering guarantee. A per-chapter failure is
// logged and the run continues to the next chapter rather than aborting.
func (g *Generator) GenerateBook(ctx context.Context, maxChapters int) ([]Chapter, error) {
	var book []Chapter
	previousRecap := ""

	for n := 1; n <= maxChapters; n++ {
		ch, err := g.GenerateChapter(ctx, n, previousRecap)
		if err != nil {
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				log.Printf("[Chapter %d] stage failure, continuing to next chapter: %v", n, err)
				continue
			}
			return book, fmt.Errorf("chapter %d: %w", n, err)
		}
		book = append(book, ch)
		previousRecap = ch.Recap
	}
	return book, nil
}

// DiscoverChapterCount scans the given step ids for a "chapter_<N>"
// prefix and returns the maximum N found, or 0 if none match.
func DiscoverChapterCount(entries []string) int {
	max := 0
	for _, stepID := range entries {
		n, ok := parseChapterIndex(stepID)
		if ok && n > max {
			max = n
		}
	}
	return max
}

func parseChapterIndex(stepID string) (int, bool) {
	const prefix = "chapter_"
	if len(stepID) <= len(prefix) || stepID[:len(prefix)] != prefix {
		return 0, false
	}
	rest := stepID[len(prefix):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n := 0
	for _, c := range rest[:end] {
		n = n*10 + int(c-'0')
	}
	return n, true
}

// GenerateChapter runs every step of §4.13 for one chapter number.
func (g *Generator) GenerateChapter(ctx context.Context, n int, previousRecap string) (Chapter, error) {
	prefix := savepointPrefix(n)

	synopsis, err := g.ensureSynopsis(ctx, n)
	if err != nil {
		if err == ErrSkipChapter {
			logSkip(n, "no synopsis available")
			return Chapter{}, wrapStage(err)
		}
		return Chapter{}, wrapStage(fmt.Errorf("ensure synopsis: %w", err))
	}

	outline, sceneDefs, err := g.generateOutline(ctx, n, synopsis, previousRecap)
	if err != nil {
		return Chapter{}, wrapStage(fmt.Errorf("generate outline: %w", err))
	}

	scenes, err := g.generateScenes(ctx, n, sceneDefs)
	if err != nil {
		return Chapter{}, wrapStage(fmt.Errorf("generate scenes: %w", err))
	}

	content := assembleContent(scenes)
	if err := g.save(prefix+"/content", content); err != nil {
		return Chapter{}, wrapStage(fmt.Errorf("save content: %w", err))
	}

	if err := g.updateEntities(ctx, content); err != nil {
		log.Printf("[Chapter %d] entity sheet updates failed, continuing: %v", n, err)
	}

	chapterRecap, err := g.ensureRecap(ctx, n, content, previousRecap)
	if err != nil {
		return Chapter{}, wrapStage(fmt.Errorf("generate recap: %w", err))
	}

	title, err := g.ensureTitle(ctx, n, content, outline)
	if err != nil {
		return Chapter{}, wrapStage(fmt.Errorf("generate title: %w", err))
	}

	return Chapter{
		Number:  n,
		Title:   title,
		Content: content,
		Outline: outline,
		Scenes:  scenes,
		Recap:   chapterRecap,
	}, nil
}

// ensureSynopsis is §4.13 step 1.
func (g *Generator) ensureSynopsis(ctx context.Context, n int) (string, error) {
	prefix := savepointPrefix(n)
	synopsisID := prefix + "/synopsis"

	if existing, found, err := g.load(synopsisID); err != nil {
		return "", err
	} else if found {
		return existing, nil
	}

	prevSynopsis := ""
	if n > 1 {
		prevSynopsis, _, _ = g.load(savepointPrefix(n-1) + "/synopsis")
	}

	steps := []struct{ promptID, savepointID string }{
		{"chapters/synopsis/understand_storyline", prefix + "/synopsis_stages/understand_storyline"},
		{"chapters/synopsis/base_context", prefix + "/synopsis_stages/base_context"},
		{"chapters/synopsis/combined_outline", prefix + "/synopsis_stages/combined_outline"},
		{"chapters/synopsis/characters", prefix + "/synopsis_stages/characters"},
		{"chapters/synopsis/settings", prefix + "/synopsis_stages/settings"},
	}

	variables := map[string]string{"chapter_number": fmt.Sprintf("%d", n), "previous_synopsis": prevSynopsis}
	var last string
	for _, step := range steps {
		res, err := g.Exec.Execute(ctx, executor.Request{
			PromptID:    step.promptID,
			Variables:   variables,
			SavepointID: step.savepointID,
			ModelConfig: g.Model,
		})
		if err != nil {
			return "", ErrSkipChapter
		}
		last = res.Content
		variables["prior_step"] = last
	}

	res, err := g.Exec.Execute(ctx, executor.Request{
		PromptID:    "chapters/synopsis/produce",
		Variables:   variables,
		SavepointID: synopsisID,
		ModelConfig: g.Model,
	})
	if err != nil || res.Content == "" {
		return "", ErrSkipChapter
	}
	return res.Content, nil
}

// StageError wraps a per-chapter failure that the book-level loop should
// log and continue past, per §7's ChapterStageFailure policy.
type StageError struct{ cause error }

func (e *StageError) Error() string { return e.cause.Error() }
func (e *StageError) Unwrap() error { return e.cause }

func wrapStage(err error) error {
	if err == nil {
		return nil
	}
	return &StageError{cause: err}
}

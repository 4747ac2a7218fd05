// Package outline implements the Outline Generator (C12): the prompt's
// first pass through the model, producing the eight story-analysis
// chunks, the derived story elements text, and the entity sheets that
// seed every downstream chapter.
package outline

import (
	"fmt"
	"strings"

	"github.com/narrativeforge/loomwright/internal/entity"
)

// chunkNames is the fixed order of the eight story-analysis chunks,
// per §4.12 step 2.
var chunkNames = []string{
	"core_story_foundation",
	"character_foundation",
	"setting_foundation",
	"plot_structure",
	"theme_message",
	"tone_style",
	"conflict_stakes",
	"world_rules_logic",
}

// titleCase renders a chunk's savepoint name as the "=== Title Case Name
// ===" heading used when assembling story_elements, per §4.12 step 4.
func titleCase(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// AssembleStoryElements concatenates the eight chunks in fixed order with
// "=== <Title Case Name> ===" headers.
func AssembleStoryElements(chunks map[string]string) string {
	var b strings.Builder
	for i, name := range chunkNames {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n\n%s", titleCase(name), chunks[name])
	}
	return b.String()
}

// ChunkNames returns the fixed eight story-analysis chunk identifiers, in
// generation order.
func ChunkNames() []string { return append([]string{}, chunkNames...) }

// Managers bundles the two entity pipelines the outline stage drives
// after story elements are produced.
type Managers struct {
	Characters *entity.Manager
	Settings   *entity.Manager
}

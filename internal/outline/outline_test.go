package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssembleStoryElementsHeadersAndOrder(t *testing.T) {
	chunks := map[string]string{
		"core_story_foundation": "foundation text",
		"theme_message":         "theme text",
	}
	out := AssembleStoryElements(chunks)

	assert.Contains(t, out, "=== Core Story Foundation ===\n\nfoundation text")
	assert.Contains(t, out, "=== Theme Message ===\n\ntheme text")

	foundationIdx := indexOf(out, "Core Story Foundation")
	themeIdx := indexOf(out, "Theme Message")
	assert.Less(t, foundationIdx, themeIdx, "chunks must appear in fixed order")
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "World Rules Logic", titleCase("world_rules_logic"))
	assert.Equal(t, "Tone Style", titleCase("tone_style"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

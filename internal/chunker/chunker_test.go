package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmptyTextYieldsNoChunks(t *testing.T) {
	assert.Empty(t, Split("", Options{}))
}

func TestSplitShorterThanMaxSizeYieldsOneChunk(t *testing.T) {
	chunks := Split("a short piece of text", Options{MaxChunkSize: 1000, OverlapSize: 100})
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short piece of text", chunks[0].Text)
}

func TestSplitProducesOverlappingWindows(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := Split(text, Options{MaxChunkSize: 100, OverlapSize: 20})

	require.GreaterOrEqual(t, len(chunks), 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len([]rune(c.Text)), 100)
	}
	// Last chunk must reach the end of the source text.
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last.Text) || last.Text == text)
}

func TestSplitStampsMetadataOntoEveryChunk(t *testing.T) {
	text := strings.Repeat("y", 150)
	chunks := Split(text, Options{MaxChunkSize: 50, OverlapSize: 10, Metadata: map[string]any{"story": "nova"}})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "nova", c.Metadata["story"])
	}
}

func TestSplitMetadataCopiesAreIndependent(t *testing.T) {
	shared := map[string]any{"k": "v"}
	chunks := Split(strings.Repeat("z", 120), Options{MaxChunkSize: 50, OverlapSize: 5, Metadata: shared})
	require.GreaterOrEqual(t, len(chunks), 2)
	chunks[0].Metadata["k"] = "mutated"
	assert.Equal(t, "v", chunks[1].Metadata["k"])
}

package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSeedMaterialOrdersCommitsOldestFirst(t *testing.T) {
	commits := []CommitSummary{
		{ShortHash: "b", Author: "Bea", When: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Subject: "second"},
		{ShortHash: "a", Author: "Ada", When: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Subject: "first"},
	}
	out := BuildSeedMaterial(nil, commits)
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestBuildSeedMaterialIncludesOverviewFields(t *testing.T) {
	overview := &RepoOverview{FullName: "acme/widgets", Description: "a widget factory", Topics: []string{"tools"}}
	out := BuildSeedMaterial(overview, nil)
	assert.Contains(t, out, "acme/widgets")
	assert.Contains(t, out, "a widget factory")
	assert.Contains(t, out, "tools")
}

func TestBuildSeedMaterialCapsCommitCount(t *testing.T) {
	commits := make([]CommitSummary, 0, 100)
	for i := 0; i < 100; i++ {
		commits = append(commits, CommitSummary{
			ShortHash: "x",
			Author:    "Ada",
			When:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Subject:   "change",
		})
	}
	out := BuildSeedMaterial(nil, commits)
	assert.Equal(t, maxSeedCommits, strings.Count(out, "change"))
}

func TestTruncateLinesLeavesShortTextAlone(t *testing.T) {
	assert.Equal(t, "a\nb", truncateLines("a\nb", 10))
}

func TestTruncateLinesCutsLongText(t *testing.T) {
	text := strings.Repeat("line\n", 100)
	out := truncateLines(text, 5)
	assert.True(t, strings.HasSuffix(out, "..."))
}

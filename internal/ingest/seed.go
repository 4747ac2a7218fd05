package ingest

import (
	"fmt"
	"sort"
	"strings"
)

const maxSeedCommits = 40

// BuildSeedMaterial renders a repository overview and its commit history
// into a prose blob suitable as an Outline Generator seed prompt, in
// place of hand-written prompt text.
func BuildSeedMaterial(overview *RepoOverview, commits []CommitSummary) string {
	var b strings.Builder

	if overview != nil {
		if overview.FullName != "" {
			fmt.Fprintf(&b, "Project: %s\n", overview.FullName)
		}
		if overview.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", overview.Description)
		}
		if len(overview.Topics) > 0 {
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(overview.Topics, ", "))
		}
		if overview.README != "" {
			b.WriteString("\nREADME excerpt:\n")
			b.WriteString(truncateLines(overview.README, 60))
			b.WriteString("\n")
		}
	}

	if len(commits) > 0 {
		ordered := append([]CommitSummary(nil), commits...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].When.Before(ordered[j].When) })
		if len(ordered) > maxSeedCommits {
			ordered = ordered[len(ordered)-maxSeedCommits:]
		}

		b.WriteString("\nDevelopment history, oldest to newest:\n")
		for _, c := range ordered {
			kind := "commit"
			if c.IsMerge {
				kind = "merge"
			}
			fmt.Fprintf(&b, "- %s (%s) by %s: %s\n", c.When.Format("2006-01-02"), kind, c.Author, c.Subject)
		}
	}

	return strings.TrimSpace(b.String())
}

func truncateLines(text string, maxLines int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}
	return strings.Join(lines[:maxLines], "\n") + "\n..."
}

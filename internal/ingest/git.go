package ingest

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/storage/memory"
)

// OpenLocalRepository opens a repository already checked out on disk.
func OpenLocalRepository(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening local repository at %s: %w", path, err)
	}
	return repo, nil
}

// CloneRepository clones url into memory, for one-shot ingestion without
// leaving a checkout behind.
func CloneRepository(url string) (*git.Repository, error) {
	repo, err := git.Clone(memory.NewStorage(), nil, &git.CloneOptions{URL: url})
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}
	return repo, nil
}

// CommitLog walks the HEAD history, returning up to maxCommits summaries
// in reverse-chronological order. maxCommits <= 0 means unlimited.
func CommitLog(repo *git.Repository, maxCommits int) ([]CommitSummary, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("walking commit log: %w", err)
	}

	var out []CommitSummary
	err = iter.ForEach(func(c *object.Commit) error {
		if maxCommits > 0 && len(out) >= maxCommits {
			return storedErrStop
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, CommitSummary{
			ShortHash: c.Hash.String()[:8],
			Author:    c.Author.Name,
			When:      c.Author.When,
			Subject:   strings.TrimSpace(subject),
			IsMerge:   c.NumParents() > 1,
		})
		return nil
	})
	if err != nil && err != storedErrStop {
		return nil, fmt.Errorf("iterating commits: %w", err)
	}
	return out, nil
}

// storedErrStop is a sentinel used only to short-circuit object.Commit's
// ForEach once maxCommits is reached; it is never surfaced to the caller.
var storedErrStop = fmt.Errorf("commit log limit reached")

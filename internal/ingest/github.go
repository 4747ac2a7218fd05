package ingest

import (
	"context"
	"fmt"

	"github.com/google/go-github/v77/github"
)

// NewGitHubClient builds an authenticated client. An empty token still
// works against public repositories, subject to the lower anonymous rate
// limit.
func NewGitHubClient(token string) *github.Client {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// FetchRepoOverview pulls the repository's description/topics/stars and
// decodes its root README, if any.
func FetchRepoOverview(ctx context.Context, client *github.Client, owner, repo string) (*RepoOverview, error) {
	ghRepo, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repository %s/%s: %w", owner, repo, err)
	}

	overview := &RepoOverview{
		FullName:    ghRepo.GetFullName(),
		Description: ghRepo.GetDescription(),
		Topics:      ghRepo.Topics,
		Stars:       ghRepo.GetStargazersCount(),
	}

	readme, _, err := client.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		// Missing README isn't fatal to ingestion; the overview still has
		// description and topics to work with.
		return overview, nil
	}
	if content, err := readme.GetContent(); err == nil {
		overview.README = content
	}
	return overview, nil
}

package compare

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"
)

// ErrNotAFile is returned when a template path names a
// directory on a hosted repository.
var ErrNotAFile = errors.New("template path is not a file")

// GitHubConfig holds what NewGitHubSource needs.
type GitHubConfig struct {
	// RepoOwner is the GitHub user or organisation that
	// owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// Ref is a branch, tag or commit. Empty means the
	// default branch.
	Ref string
	// AccessToken is optional for public repositories.
	AccessToken string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com") or base URL.
	// Leave empty for github.com.
	EnterpriseHost string
}

// GitHubSource reads templates through the GitHub contents
// API.
type GitHubSource struct {
	client *gh.Client
	owner  string
	repo   string
	ref    string
}

// NewGitHubSource validates cfg and returns a source.
func NewGitHubSource(cfg GitHubConfig) (*GitHubSource, error) {
	const errCtx = "creating github source"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf("%s: repo owner must be set", errCtx)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf("%s: repo must be set", errCtx)
	}

	client := gh.NewClient(nil)
	if cfg.AccessToken != "" {
		client = client.WithAuthToken(cfg.AccessToken)
	}

	if cfg.EnterpriseHost != "" {
		base := cfg.EnterpriseHost
		if !strings.Contains(base, "://") {
			base = "https://" + base
		}

		var err error

		client, err = client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("%s: enterprise urls: %w", errCtx, err)
		}
	}

	return &GitHubSource{
		client: client,
		owner:  cfg.RepoOwner,
		repo:   cfg.Repo,
		ref:    cfg.Ref,
	}, nil
}

// Name returns "github:owner/repo@ref".
func (s *GitHubSource) Name() string {
	name := prefixGitHub + s.owner + "/" + s.repo
	if s.ref != "" {
		name += "@" + s.ref
	}

	return name
}

// Template fetches and decodes the file at path.
func (s *GitHubSource) Template(ctx context.Context, path string) (string, error) {
	const errCtx = "fetching github template"

	var opts *gh.RepositoryContentGetOptions
	if s.ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: s.ref}
	}

	file, _, _, err := s.client.Repositories.GetContents(
		ctx, s.owner, s.repo, path, opts,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	if file == nil {
		return "", fmt.Errorf("%s: %w: %s", errCtx, ErrNotAFile, path)
	}

	text, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return text, nil
}

package compare

import (
	"context"
	"fmt"

	gl "gitlab.com/gitlab-org/api/client-go"
)

// defaultGitLabHost is used when GitLabConfig.Host is
// empty.
const defaultGitLabHost = "https://gitlab.com"

// GitLabConfig holds what NewGitLabSource needs.
type GitLabConfig struct {
	// Project is the project path ("group/project") or
	// numeric ID.
	Project string
	// Ref is a branch, tag or commit. Empty means the
	// default branch.
	Ref string
	// AccessToken is optional for public projects.
	AccessToken string
	// Host is the GitLab base URL.
	Host string
}

// GitLabSource reads templates through the GitLab
// repository files API.
type GitLabSource struct {
	client  *gl.Client
	project string
	ref     string
}

// NewGitLabSource validates cfg and returns a source.
func NewGitLabSource(cfg GitLabConfig) (*GitLabSource, error) {
	const errCtx = "creating gitlab source"

	if cfg.Project == "" {
		return nil, fmt.Errorf("%s: project must be set", errCtx)
	}

	host := cfg.Host
	if host == "" {
		host = defaultGitLabHost
	}

	client, err := gl.NewClient(cfg.AccessToken, gl.WithBaseURL(host))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &GitLabSource{
		client:  client,
		project: cfg.Project,
		ref:     cfg.Ref,
	}, nil
}

// Name returns "gitlab:group/project@ref".
func (s *GitLabSource) Name() string {
	name := prefixGitLab + s.project
	if s.ref != "" {
		name += "@" + s.ref
	}

	return name
}

// Template fetches the raw file at path.
func (s *GitLabSource) Template(ctx context.Context, path string) (string, error) {
	const errCtx = "fetching gitlab template"

	opts := &gl.GetRawFileOptions{}
	if s.ref != "" {
		ref := s.ref
		opts.Ref = &ref
	}

	by, _, err := s.client.RepositoryFiles.GetRawFile(
		s.project, path, opts, gl.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return string(by), nil
}

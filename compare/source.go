package compare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source prefixes accepted by ParseSource.
const (
	prefixDir    = "dir:"
	prefixGitHub = "github:"
	prefixGitLab = "gitlab:"
)

// defaultRef is the branch cloned when a git source names
// none.
const defaultRef = "main"

// ErrBadSource reports an unparsable source reference.
var ErrBadSource = errors.New("invalid template source")

// Source reads template text at a path relative to the
// root of a template tree.
type Source interface {
	// Name identifies the source in reports.
	Name() string
	// Template returns the text of the template at path.
	Template(ctx context.Context, path string) (string, error)
}

// Closer is implemented by sources holding local state,
// such as a clone, that must be released.
type Closer interface {
	Close() error
}

// SourceOptions carries credentials and scratch space for
// ParseSource.
type SourceOptions struct {
	// GitHubToken authenticates GitHub API calls; public
	// repositories need none.
	GitHubToken string
	// GitHubEnterpriseHost is a GitHub Enterprise host,
	// or a full base URL. Empty means github.com.
	GitHubEnterpriseHost string
	// GitLabToken authenticates GitLab API calls.
	GitLabToken string
	// GitLabHost is the GitLab base URL. Empty means
	// https://gitlab.com.
	GitLabHost string
	// WorkDir holds git clones. Empty means a temporary
	// directory.
	WorkDir string
}

// ParseSource builds the Source a reference names:
//
//	dir:/path/to/templates
//	github:owner/repo@ref
//	gitlab:group/project@ref
//	https://host/org/repo.git@branch
//
// Git sources are cloned immediately; close them with
// CloseSource.
func ParseSource(
	ctx context.Context,
	ref string,
	opts SourceOptions,
) (Source, error) {
	const errCtx = "parsing template source"

	ref = strings.TrimSpace(ref)

	var (
		src Source
		err error
	)

	switch {
	case ref == "":
		err = fmt.Errorf("%w: empty reference", ErrBadSource)
	case strings.HasPrefix(ref, prefixDir):
		src, err = NewDirSource(strings.TrimPrefix(ref, prefixDir))
	case strings.HasPrefix(ref, prefixGitHub):
		src, err = parseGitHub(strings.TrimPrefix(ref, prefixGitHub), opts)
	case strings.HasPrefix(ref, prefixGitLab):
		src, err = parseGitLab(strings.TrimPrefix(ref, prefixGitLab), opts)
	default:
		repo, branch := splitRef(ref)
		src, err = CloneSource(ctx, GitConfig{
			Repo:    repo,
			Ref:     branch,
			WorkDir: opts.WorkDir,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %q: %w", errCtx, ref, err)
	}

	return src, nil
}

// CloseSource releases src when it holds local state.
func CloseSource(src Source) error {
	if closer, ok := src.(Closer); ok {
		return closer.Close()
	}

	return nil
}

func parseGitHub(ref string, opts SourceOptions) (Source, error) {
	repo, rev := splitRef(ref)

	owner, name, ok := strings.Cut(repo, "/")
	if !ok || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: want owner/repo, got %q", ErrBadSource, repo)
	}

	return NewGitHubSource(GitHubConfig{
		RepoOwner:      owner,
		Repo:           name,
		Ref:            rev,
		AccessToken:    opts.GitHubToken,
		EnterpriseHost: opts.GitHubEnterpriseHost,
	})
}

func parseGitLab(ref string, opts SourceOptions) (Source, error) {
	project, rev := splitRef(ref)

	return NewGitLabSource(GitLabConfig{
		Project:     project,
		Ref:         rev,
		AccessToken: opts.GitLabToken,
		Host:        opts.GitLabHost,
	})
}

// splitRef splits "repo@ref" at the last "@". That "@" is
// part of the repository instead when it is the user of an
// scp-like address ("git@host:org/repo.git") or of a URL
// ("https://user@host/repo.git").
func splitRef(ref string) (string, string) {
	idx := strings.LastIndexByte(ref, '@')
	if idx < 0 || strings.ContainsRune(ref[idx+1:], ':') {
		return ref, ""
	}

	if _, rest, ok := strings.Cut(ref[:idx], "://"); ok &&
		!strings.ContainsRune(rest, '/') {
		return ref, ""
	}

	return ref[:idx], ref[idx+1:]
}

// DirSource reads templates from a local directory.
type DirSource struct {
	root string
}

// NewDirSource returns a source rooted at dir, which must
// exist.
func NewDirSource(dir string) (*DirSource, error) {
	const errCtx = "opening template directory"

	if dir == "" {
		return nil, fmt.Errorf("%s: %w: empty path", errCtx, ErrBadSource)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w: %s is not a directory", errCtx, ErrBadSource, dir)
	}

	return &DirSource{root: dir}, nil
}

// Name returns the directory.
func (s *DirSource) Name() string {
	return s.root
}

// Template reads path below the root. Paths escaping the
// root are refused.
func (s *DirSource) Template(ctx context.Context, path string) (string, error) {
	const errCtx = "reading template"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	full, err := within(s.root, path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	by, err := os.ReadFile(full) //nolint:gosec // confined to root
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return string(by), nil
}

// within joins path to root, refusing paths that leave it.
func within(root, path string) (string, error) {
	if !filepath.IsLocal(path) {
		return "", fmt.Errorf("%w: path %q leaves the template tree", ErrBadSource, path)
	}

	return filepath.Join(root, path), nil
}

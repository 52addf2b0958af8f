package compare

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitConfig describes a repository to clone.
type GitConfig struct {
	// Repo is the repository URL or local path.
	Repo string
	// Ref is the branch to check out. Empty means main.
	Ref string
	// WorkDir is the parent of the clone directory. Empty
	// means the system temporary directory.
	WorkDir string
	// SparsePaths restricts the checkout to these
	// directories when set.
	SparsePaths []string
}

// GitSource reads templates from a shallow clone.
type GitSource struct {
	*DirSource

	name string
	dir  string
}

// CloneSource clones cfg.Repo and returns a source over the
// working tree. Close removes the clone.
func CloneSource(ctx context.Context, cfg GitConfig) (*GitSource, error) {
	const errCtx = "cloning template repository"

	if cfg.Repo == "" {
		return nil, fmt.Errorf("%s: %w: repo must be set", errCtx, ErrBadSource)
	}

	ref := cfg.Ref
	if ref == "" {
		ref = defaultRef
	}

	dir, err := os.MkdirTemp(cfg.WorkDir, "confgen-clone-")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := clone(ctx, cfg.Repo, ref, dir, cfg.SparsePaths); err != nil {
		_ = os.RemoveAll(dir)

		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return &GitSource{
		DirSource: &DirSource{root: dir},
		name:      cfg.Repo + "@" + ref,
		dir:       dir,
	}, nil
}

// Name returns "repo@ref".
func (s *GitSource) Name() string {
	return s.name
}

// Close removes the clone.
func (s *GitSource) Close() error {
	const errCtx = "removing clone"

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

//nolint:gosec // sparse-checkout file mode is intentional
func clone(
	ctx context.Context,
	repo, ref, dir string,
	sparse []string,
) error {
	args := []string{
		"clone",
		"--no-checkout",
		"--single-branch",
		"--branch", ref,
		"--depth", "1",
		"--filter=blob:none",
		"--no-tags",
		"--origin", "origin",
		repo, dir,
	}

	if _, err := git(ctx, "", args...); err != nil {
		return err
	}

	if len(sparse) > 0 {
		if _, err := git(
			ctx, dir, "config", "--local", "core.sparsecheckout", "true",
		); err != nil {
			return err
		}

		patterns := make([]string, len(sparse))
		for idx, path := range sparse {
			patterns[idx] = strings.Trim(path, "/") + "/\n"
		}

		err := os.WriteFile(
			filepath.Join(dir, ".git", "info", "sparse-checkout"),
			[]byte(strings.Join(patterns, "")),
			0o644,
		)
		if err != nil {
			return fmt.Errorf("write sparse-checkout: %w", err)
		}
	}

	_, err := git(ctx, dir, "checkout", ref)

	return err
}

// git runs a git command in dir and returns its combined
// output.
func git(ctx context.Context, dir string, arg ...string) (string, error) {
	const errCtx = "executing command"

	slog.Debug("executing", "cmd", "git", "args", strings.Join(arg, " "))

	cmd := exec.CommandContext(ctx, "git", arg...)
	cmd.Dir = dir

	by, err := cmd.CombinedOutput()
	if err != nil {
		return string(by), fmt.Errorf(
			"%s: git %s: %w: %s",
			errCtx, strings.Join(arg, " "), err, strings.TrimSpace(string(by)),
		)
	}

	return string(by), nil
}

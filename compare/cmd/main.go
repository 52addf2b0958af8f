// Package main provides the confgen-compare CLI. It renders
// the templates of two revisions of a template tree against
// a corpus of settings models and reports every difference.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/byte4ever/confgen/compare"
	"github.com/byte4ever/confgen/templating"
)

const (
	exitUsage = 2
	exitDiff  = 3
)

var (
	errUsage       = errors.New("usage")
	errDifferences = errors.New("rendered output differs")
)

type config struct {
	Models        string
	V1Repo        string
	V2Repo        string
	TemplatePaths string
	Templates     []string
	Workers       int
	V1Backend     string
	V2Backend     string
	GitHubToken   string
	GitHubHost    string
	GitLabToken   string
	GitLabHost    string
	WorkDir       string
	All           bool
	Color         bool
	LogLevel      string
}

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)

	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err) //nolint:errcheck // best effort
		os.Exit(exitUsage)
	case errors.Is(err, errDifferences):
		os.Exit(exitDiff)
	default:
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	const errCtx = "parsing flags"

	cfg := config{
		Workers:     runtime.NumCPU(),
		V1Backend:   templating.BackendPongo2,
		V2Backend:   templating.BackendPongo2,
		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		GitLabToken: os.Getenv("GITLAB_TOKEN"),
		LogLevel:    "info",
	}

	fs := pflag.NewFlagSet("confgen-compare", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Models, "models", "", "directory of settings models")
	fs.StringVar(&cfg.V1Repo, "v1-repo", "",
		"reference templates: url@branch, github:owner/repo@ref, "+
			"gitlab:group/project@ref or dir:/path")
	fs.StringVar(&cfg.V2Repo, "v2-repo", "", "candidate templates, same forms as --v1-repo")
	fs.StringVar(&cfg.TemplatePaths, "template-paths", "",
		"file listing template paths relative to the repository roots")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent renders")
	fs.StringVar(&cfg.V1Backend, "v1-backend", cfg.V1Backend, "backend for v1: pongo2 or fast")
	fs.StringVar(&cfg.V2Backend, "v2-backend", cfg.V2Backend, "backend for v2: pongo2 or fast")
	fs.StringVar(&cfg.GitHubToken, "github-token", cfg.GitHubToken,
		"GitHub token (default $GITHUB_TOKEN)")
	fs.StringVar(&cfg.GitHubHost, "github-enterprise-host", "", "GitHub Enterprise host")
	fs.StringVar(&cfg.GitLabToken, "gitlab-token", cfg.GitLabToken,
		"GitLab token (default $GITLAB_TOKEN)")
	fs.StringVar(&cfg.GitLabHost, "gitlab-host", "", "GitLab base URL")
	fs.StringVar(&cfg.WorkDir, "work-dir", "", "where git clones are made")
	fs.BoolVar(&cfg.All, "all", false, "list agreeing results too")
	fs.BoolVar(&cfg.Color, "color", false, "colorize the report")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("%s: %w: %w", errCtx, errUsage, err)
	}

	// Positional arguments are template paths too.
	cfg.Templates = fs.Args()

	switch {
	case cfg.Models == "":
		return config{}, fmt.Errorf("%s: %w: --models is required", errCtx, errUsage)
	case cfg.V1Repo == "" || cfg.V2Repo == "":
		return config{}, fmt.Errorf(
			"%s: %w: --v1-repo and --v2-repo are required", errCtx, errUsage,
		)
	case cfg.TemplatePaths == "" && len(cfg.Templates) == 0:
		return config{}, fmt.Errorf(
			"%s: %w: --template-paths or template arguments are required",
			errCtx, errUsage,
		)
	case cfg.Workers < 1:
		return config{}, fmt.Errorf("%s: %w: --workers must be at least 1", errCtx, errUsage)
	}

	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	const errCtx = "confgen-compare"

	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("%w: --log-level: %w", errUsage, err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		stderr, &slog.HandlerOptions{Level: level},
	)))

	v1Backend, err := templating.NewBackend(cfg.V1Backend)
	if err != nil {
		return fmt.Errorf("%w: --v1-backend: %w", errUsage, err)
	}

	v2Backend, err := templating.NewBackend(cfg.V2Backend)
	if err != nil {
		return fmt.Errorf("%w: --v2-backend: %w", errUsage, err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	paths := cfg.Templates

	if cfg.TemplatePaths != "" {
		listed, err := compare.ReadTemplatePaths(cfg.TemplatePaths)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		paths = append(listed, paths...)
	}

	models, err := compare.LoadModels(cfg.Models)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	opts := compare.SourceOptions{
		GitHubToken:          cfg.GitHubToken,
		GitHubEnterpriseHost: cfg.GitHubHost,
		GitLabToken:          cfg.GitLabToken,
		GitLabHost:           cfg.GitLabHost,
		WorkDir:              cfg.WorkDir,
	}

	v1, err := compare.ParseSource(ctx, cfg.V1Repo, opts)
	if err != nil {
		return fmt.Errorf("%s: v1: %w", errCtx, err)
	}
	defer closeSource(v1)

	v2, err := compare.ParseSource(ctx, cfg.V2Repo, opts)
	if err != nil {
		return fmt.Errorf("%s: v2: %w", errCtx, err)
	}
	defer closeSource(v2)

	slog.Info(
		"comparing",
		"v1", v1.Name(),
		"v2", v2.Name(),
		"models", len(models),
		"templates", len(paths),
		"workers", cfg.Workers,
	)

	report, err := compare.Run(ctx, compare.Config{
		Models:        models,
		TemplatePaths: paths,
		V1:            compare.Side{Source: v1, Backend: v1Backend},
		V2:            compare.Side{Source: v2, Backend: v2Backend},
		Workers:       cfg.Workers,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := report.Write(stdout, compare.WriteOptions{
		Color: cfg.Color,
		All:   cfg.All,
	}); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if sum := report.Summary(); sum.Different > 0 {
		return fmt.Errorf("%s: %w: %d of %d", errCtx, errDifferences, sum.Different, sum.Total)
	}

	return nil
}

func closeSource(src compare.Source) {
	if err := compare.CloseSource(src); err != nil {
		slog.Warn("cleanup failed", "source", src.Name(), "error", err)
	}
}

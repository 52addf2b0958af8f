package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage")

// config holds all CLI parameters. Values come from the
// optional YAML file first, flags override them.
type config struct {
	SettingsFile string   `yaml:"settings-file"`
	SettingsDir  string   `yaml:"settings-dir"`
	APIURL       string   `yaml:"api-url"`
	APISocket    string   `yaml:"api-socket"`
	ConfigMap    string   `yaml:"configmap"`
	Kubeconfig   string   `yaml:"kubeconfig"`
	Templates    []string `yaml:"templates"`
	OutputDir    string   `yaml:"output-dir"`
	Backend      string   `yaml:"backend"`
	LogLevel     string   `yaml:"log-level"`
	LogFormat    string   `yaml:"log-format"`
	FetchRetries int      `yaml:"fetch-retries"`
	Jobs         int      `yaml:"jobs"`
}

func defaultConfig() config {
	return config{
		Backend:      "pongo2",
		LogLevel:     "info",
		LogFormat:    "text",
		FetchRetries: 3,
		Jobs:         4,
	}
}

func bindFlags(fs *pflag.FlagSet, cfg *config, cfgFile *string) {
	fs.StringVar(cfgFile, "config", "", "YAML file holding defaults for these flags")
	fs.StringVar(&cfg.SettingsFile, "settings-file", cfg.SettingsFile,
		"settings file (json, jsonc, yaml, cbor, optionally .zst)")
	fs.StringVar(&cfg.SettingsDir, "settings-dir", cfg.SettingsDir,
		"directory of settings files layered in name order")
	fs.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "settings API base URL")
	fs.StringVar(&cfg.APISocket, "api-socket", cfg.APISocket,
		"unix socket of the settings API")
	fs.StringVar(&cfg.ConfigMap, "configmap", cfg.ConfigMap,
		"settings ConfigMap as namespace/name[:key]")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", cfg.Kubeconfig,
		"kubeconfig used with --configmap")
	fs.StringArrayVarP(&cfg.Templates, "template", "t", cfg.Templates,
		"template file to render (repeatable)")
	fs.StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir,
		"write rendered files here instead of stdout")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend,
		"template backend: pongo2 or fast")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel,
		"debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.IntVar(&cfg.FetchRetries, "fetch-retries", cfg.FetchRetries,
		"attempts for transient settings fetch failures")
	fs.IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "templates rendered in parallel")
}

// loadConfig reads args in two passes: the first finds
// --config, the second applies flags over the file.
func loadConfig(args []string, stderr io.Writer) (config, error) {
	const errCtx = "loading configuration"

	var cfgFile string

	probe := defaultConfig()
	pre := pflag.NewFlagSet("confgen", pflag.ContinueOnError)
	pre.SetOutput(io.Discard)
	bindFlags(pre, &probe, &cfgFile)

	if err := pre.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return config{}, fmt.Errorf("%s: %w: %w", errCtx, errUsage, err)
	}

	cfg := defaultConfig()

	if cfgFile != "" {
		by, err := os.ReadFile(cfgFile) //nolint:gosec // path from CLI flag
		if err != nil {
			return config{}, fmt.Errorf("%s: %w", errCtx, err)
		}

		if err := yaml.UnmarshalWithOptions(
			by, &cfg, yaml.DisallowUnknownField(),
		); err != nil {
			return config{}, fmt.Errorf("%s: %s: %w", errCtx, cfgFile, err)
		}
	}

	fs := pflag.NewFlagSet("confgen", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg, &cfgFile)

	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("%s: %w: %w", errCtx, errUsage, err)
	}

	// Positional arguments are templates too.
	cfg.Templates = append(cfg.Templates, fs.Args()...)

	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return cfg, nil
}

func (c config) validate() error {
	sources := 0

	for _, src := range []string{
		c.SettingsFile, c.SettingsDir, c.APIURL + c.APISocket, c.ConfigMap,
	} {
		if src != "" {
			sources++
		}
	}

	if sources != 1 {
		return fmt.Errorf(
			"%w: exactly one of --settings-file, --settings-dir, "+
				"--api-url/--api-socket or --configmap is required",
			errUsage,
		)
	}

	if len(c.Templates) == 0 {
		return fmt.Errorf("%w: at least one --template is required", errUsage)
	}

	if c.FetchRetries < 1 {
		return fmt.Errorf("%w: --fetch-retries must be at least 1", errUsage)
	}

	if c.Jobs < 1 {
		return fmt.Errorf("%w: --jobs must be at least 1", errUsage)
	}

	return nil
}

func newLogger(cfg config, out io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("%w: --log-level: %w", errUsage, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.LogFormat) {
	case "text":
		return slog.New(slog.NewTextHandler(out, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	default:
		return nil, fmt.Errorf(
			"%w: --log-format must be text or json, got %q",
			errUsage, cfg.LogFormat,
		)
	}
}

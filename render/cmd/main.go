// Package main provides the confgen CLI that renders
// configuration templates against a settings source.
//
// Each template declares the extensions it needs in a
// required-extensions front matter; only those settings are
// fetched and only their helpers are available to it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/importer"
	"github.com/byte4ever/confgen/render"
	"github.com/byte4ever/confgen/templating"
)

const (
	outputMode      = 0o644
	exitUsage       = 2
	retryBaseDelay  = 200 * time.Millisecond
	retryFactor     = 2.0
	retryJitter     = 0.1
	templateSuffix1 = ".tpl"
	templateSuffix2 = ".tmpl"
)

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)

	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err) //nolint:errcheck // best effort
		os.Exit(exitUsage)
	default:
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	const errCtx = "confgen"

	cfg, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	resolver, err := settingsResolver(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	backend, err := templating.NewBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", errCtx, errUsage, err)
	}

	imp := importer.New(
		importer.WithRetry(resolver, wait.Backoff{
			Steps:    cfg.FetchRetries,
			Duration: retryBaseDelay,
			Factor:   retryFactor,
			Jitter:   retryJitter,
		}),
		importer.NewStaticHelperResolver(nil),
	)

	rdr := render.New(
		render.WithBackend(backend),
		render.WithCache(extension.NewCache(0)),
		render.WithLogger(logger),
	)

	outputs, err := renderAll(ctx, rdr, imp, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.OutputDir != "" {
		return nil
	}

	for _, out := range outputs {
		if _, err := io.WriteString(stdout, out); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

// renderAll renders every template, in parallel. Without
// an output directory the results are returned in template
// order for printing.
func renderAll(
	ctx context.Context,
	rdr *render.Renderer,
	imp importer.TemplateImporter,
	cfg config,
) ([]string, error) {
	outputs := make([]string, len(cfg.Templates))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(cfg.Jobs)

	for idx, tplPath := range cfg.Templates {
		grp.Go(func() error {
			out, err := renderOne(gctx, rdr, imp, tplPath)
			if err != nil {
				return err
			}

			if cfg.OutputDir == "" {
				outputs[idx] = out

				return nil
			}

			return writeOutput(cfg.OutputDir, tplPath, out)
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}

	return outputs, nil
}

func renderOne(
	ctx context.Context,
	rdr *render.Renderer,
	imp importer.TemplateImporter,
	tplPath string,
) (string, error) {
	text, err := os.ReadFile(tplPath) //nolint:gosec // path from CLI flag
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}

	out, err := rdr.Render(ctx, imp, string(text))
	if err != nil {
		return "", fmt.Errorf("%s: %w", tplPath, err)
	}

	return out, nil
}

func writeOutput(dir, tplPath, content string) error {
	name := filepath.Base(tplPath)
	name = strings.TrimSuffix(name, templateSuffix1)
	name = strings.TrimSuffix(name, templateSuffix2)

	dest := filepath.Join(dir, name)

	wrote, err := render.WriteFile(dest, content, outputMode)
	if err != nil {
		return fmt.Errorf("%s: %w", tplPath, err)
	}

	if wrote {
		slog.Info("wrote", "template", tplPath, "output", dest)
	} else {
		slog.Info("unchanged", "template", tplPath, "output", dest)
	}

	return nil
}

func settingsResolver(cfg config) (importer.SettingsResolver, error) {
	switch {
	case cfg.SettingsFile != "":
		return importer.NewFileSettingsResolver(cfg.SettingsFile), nil
	case cfg.SettingsDir != "":
		return importer.NewFileSettingsResolver(cfg.SettingsDir), nil
	case cfg.APIURL != "" || cfg.APISocket != "":
		return importer.NewAPISettingsResolver(importer.APIConfig{
			BaseURL: cfg.APIURL,
			Socket:  cfg.APISocket,
		})
	default:
		return configMapResolver(cfg)
	}
}

func configMapResolver(cfg config) (importer.SettingsResolver, error) {
	const errCtx = "configmap settings"

	ref, err := importer.ParseConfigMapRef(cfg.ConfigMap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", errCtx, errUsage, err)
	}

	kubeconfig := cfg.Kubeconfig
	if kubeconfig == "" {
		if _, ok := os.LookupEnv("KUBERNETES_SERVICE_HOST"); !ok {
			kubeconfig = filepath.Join(homedir.HomeDir(), ".kube", "config")
		}
	}

	restConfig, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("%s: building kubeconfig: %w", errCtx, err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return importer.NewConfigMapSettingsResolver(clientset, ref), nil
}

package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/importer"
	"github.com/byte4ever/confgen/render"
	"github.com/byte4ever/confgen/templating"
)

// ErrConfig reports an incomplete comparison setup.
var ErrConfig = errors.New("invalid comparison config")

// Side is one revision of the template tree and the
// backend it renders with.
type Side struct {
	Source  Source
	Backend templating.Backend
}

// Config describes a comparison run.
type Config struct {
	// Models are the settings documents rendered against.
	Models []Model
	// TemplatePaths are template paths relative to both
	// source roots.
	TemplatePaths []string
	// V1 is the reference side, V2 the candidate.
	V1, V2 Side
	// Helpers registers helpers for both sides. Nil means
	// the default catalog.
	Helpers importer.HelperResolver
	// Workers bounds how many models render at once. Zero
	// or less means one per CPU.
	Workers int
}

// Outcome is the result of rendering one side.
type Outcome struct {
	Text string
	Err  error
}

func (o Outcome) lines() []string {
	if o.Err != nil {
		return []string{"error: " + o.Err.Error()}
	}

	return strings.Split(o.Text, "\n")
}

// Result compares both sides for one model and template.
type Result struct {
	Model    string
	Template string
	V1, V2   Outcome
	// Diff is empty when both sides agree.
	Diff string
}

// Same reports whether both sides produced the same text
// or failed the same way.
func (r Result) Same() bool {
	return r.Diff == ""
}

// Failed reports whether either side failed.
func (r Result) Failed() bool {
	return r.V1.Err != nil || r.V2.Err != nil
}

// Report gathers every result of a run, ordered by model
// then template.
type Report struct {
	V1, V2  string
	Results []Result
}

// Summary counts results.
type Summary struct {
	Total, Same, Different, Failed int
}

// Summary counts the results of r.
func (r *Report) Summary() Summary {
	sum := Summary{Total: len(r.Results)}

	for _, res := range r.Results {
		if res.Failed() {
			sum.Failed++
		}

		if res.Same() {
			sum.Same++
		} else {
			sum.Different++
		}
	}

	return sum
}

// Differences returns the results where the sides disagree.
func (r *Report) Differences() []Result {
	var out []Result

	for _, res := range r.Results {
		if !res.Same() {
			out = append(out, res)
		}
	}

	return out
}

// fetched is a template read from one source.
type fetched struct {
	text string
	err  error
}

// Run renders every template against every model on both
// sides and diffs the output. Render and fetch failures are
// recorded in the report; only cancellation and invalid
// config fail the run.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	const errCtx = "comparing templates"

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	helpers := cfg.Helpers
	if helpers == nil {
		helpers = importer.NewStaticHelperResolver(nil)
	}

	v1Texts, err := fetchAll(ctx, cfg.V1.Source, cfg.TemplatePaths, workers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	v2Texts, err := fetchAll(ctx, cfg.V2.Source, cfg.TemplatePaths, workers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	cache := extension.NewCache(0)
	v1 := render.New(render.WithBackend(cfg.V1.Backend), render.WithCache(cache))
	v2 := render.New(render.WithBackend(cfg.V2.Backend), render.WithCache(cache))

	report := &Report{
		V1:      cfg.V1.Source.Name(),
		V2:      cfg.V2.Source.Name(),
		Results: make([]Result, len(cfg.Models)*len(cfg.TemplatePaths)),
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	paths := len(cfg.TemplatePaths)

	for mi, model := range cfg.Models {
		results := report.Results[mi*paths : (mi+1)*paths]

		group.Go(func() error {
			imp := importer.New(
				importer.NewFakeSettingsResolver(model.Settings), helpers,
			)

			for ti, path := range cfg.TemplatePaths {
				res := Result{
					Model:    model.Name,
					Template: path,
					V1:       renderSide(gctx, v1, imp, v1Texts[ti]),
					V2:       renderSide(gctx, v2, imp, v2Texts[ti]),
				}

				// A canceled render says nothing about the
				// templates.
				if err := gctx.Err(); err != nil {
					return err
				}

				res.Diff = diff(res.V1, res.V2)
				results[ti] = res

				slog.Debug(
					"compared",
					"model", model.Name,
					"template", path,
					"same", res.Same(),
				)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return report, nil
}

func (c Config) validate() error {
	switch {
	case len(c.Models) == 0:
		return fmt.Errorf("%w: no models", ErrConfig)
	case len(c.TemplatePaths) == 0:
		return fmt.Errorf("%w: no template paths", ErrConfig)
	case c.V1.Source == nil || c.V2.Source == nil:
		return fmt.Errorf("%w: both sources must be set", ErrConfig)
	}

	return nil
}

// fetchAll reads every path from src. A missing template
// is recorded, not returned.
func fetchAll(
	ctx context.Context,
	src Source,
	paths []string,
	workers int,
) ([]fetched, error) {
	out := make([]fetched, len(paths))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for idx, path := range paths {
		group.Go(func() error {
			text, err := src.Template(gctx, path)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}

			out[idx] = fetched{text: text, err: err}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", src.Name(), err)
	}

	return out, nil
}

func renderSide(
	ctx context.Context,
	renderer *render.Renderer,
	imp importer.TemplateImporter,
	tpl fetched,
) Outcome {
	if tpl.err != nil {
		return Outcome{Err: tpl.err}
	}

	text, err := renderer.Render(ctx, imp, tpl.text)

	return Outcome{Text: text, Err: err}
}

func diff(v1, v2 Outcome) string {
	return cmp.Diff(v1.lines(), v2.lines())
}

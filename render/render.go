package render

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/importer"
	"github.com/byte4ever/confgen/templating"
)

// Stage is a step of the render pipeline.
type Stage int

// Pipeline stages, in order. Failed is terminal like
// Rendered.
const (
	StageStart Stage = iota
	StageExtracted
	StageSettingsResolved
	StageHelpersRegistered
	StageRendered
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageExtracted:
		return "extracted"
	case StageSettingsResolved:
		return "settings-resolved"
	case StageHelpersRegistered:
		return "helpers-registered"
	case StageRendered:
		return "rendered"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNoImporter is returned when Render is given a nil
// importer or one with a nil resolver.
var ErrNoImporter = errors.New("template importer is incomplete")

// Renderer runs renders with a fixed backend. It holds no
// per-render state.
type Renderer struct {
	backend templating.Backend
	cache   *extension.Cache
	logger  *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithBackend selects the template backend. The default is
// pongo2.
func WithBackend(backend templating.Backend) Option {
	return func(r *Renderer) {
		if backend != nil {
			r.backend = backend
		}
	}
}

// WithCache memoizes extraction in cache, for callers that
// render the same templates repeatedly.
func WithCache(cache *extension.Cache) Option {
	return func(r *Renderer) {
		r.cache = cache
	}
}

// WithLogger sets the logger stage transitions are
// reported to at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		backend: templating.NewPongo2Backend(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Backend returns the renderer's backend.
func (r *Renderer) Backend() templating.Backend {
	return r.backend
}

//nolint:gochecknoglobals // stateless default
var defaultRenderer = sync.OnceValue(func() *Renderer { return New() })

// RenderTemplate renders text with the default Renderer.
func RenderTemplate(
	ctx context.Context,
	imp importer.TemplateImporter,
	text string,
) (string, error) {
	return defaultRenderer().Render(ctx, imp, text)
}

// Render extracts the requirements declared by text,
// resolves their settings and helpers through imp and
// renders the body. The result is all or nothing: on error
// no text is returned and the error is an *Error.
func (r *Renderer) Render(
	ctx context.Context,
	imp importer.TemplateImporter,
	text string,
) (string, error) {
	run := &pipeline{renderer: r, imp: imp, stage: StageStart}

	out, err := run.execute(ctx, text)
	if err != nil {
		r.logger.DebugContext(ctx, "render stage",
			"stage", StageFailed,
			"after", run.stage,
			"error", err,
		)

		return "", err
	}

	return out, nil
}

// pipeline is the state of one render call.
type pipeline struct {
	renderer *Renderer
	imp      importer.TemplateImporter
	stage    Stage
}

func (p *pipeline) advance(ctx context.Context, stage Stage, args ...any) {
	p.stage = stage
	p.renderer.logger.DebugContext(
		ctx, "render stage", append([]any{"stage", stage}, args...)...,
	)
}

func (p *pipeline) execute(ctx context.Context, text string) (string, error) {
	tpl, err := p.extract(text)
	if err != nil {
		return "", fail(KindExtraction, err)
	}

	p.advance(ctx, StageExtracted, "extensions", tpl.Names())

	if p.imp == nil ||
		p.imp.SettingsResolver() == nil ||
		p.imp.HelperResolver() == nil {
		return "", fail(KindSettingsFetch, ErrNoImporter)
	}

	if err := ctx.Err(); err != nil {
		return "", fail(KindSettingsFetch, err)
	}

	doc, err := p.imp.SettingsResolver().FetchSettings(ctx, tpl.All())
	if err != nil {
		return "", fail(KindSettingsFetch, err)
	}

	// Resolvers answer {"settings": {...}}; a bare document
	// is wrapped.
	data := doc.Unwrap().Wrap().Map()

	p.advance(ctx, StageSettingsResolved)

	registry := templating.NewRegistry()
	resolver := p.imp.HelperResolver()

	for req := range tpl.All() {
		if err := ctx.Err(); err != nil {
			return "", fail(KindHelperRegistration, err)
		}

		if err := resolver.RegisterTemplateHelpers(ctx, registry, req); err != nil {
			return "", fail(KindHelperRegistration, err)
		}
	}

	p.advance(ctx, StageHelpersRegistered, "helpers", registry.Names())

	out, err := p.renderer.backend.Render(tpl.Body, data, registry)
	if err != nil {
		return "", fail(KindRender, err)
	}

	p.advance(ctx, StageRendered)

	return out, nil
}

func (p *pipeline) extract(text string) (*extension.Template, error) {
	if p.renderer.cache != nil {
		return p.renderer.cache.Parse(text)
	}

	return extension.Parse(text)
}

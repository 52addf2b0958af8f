package templating

import (
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/flosch/pongo2/v6"
)

const pongo2SetName = "confgen"

// ErrNoLoader is returned when a template tries to load
// another template from disk.
var ErrNoLoader = errors.New("template loading is disabled")

//nolint:gochecknoglobals // compiled once
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Pongo2Backend renders bodies with pongo2. Autoescaping
// is off: output is configuration text, not HTML.
type Pongo2Backend struct {
	// TrimBlocks removes the first newline after a block
	// tag.
	TrimBlocks bool
	// LStripBlocks strips leading whitespace before a block
	// tag.
	LStripBlocks bool
}

// NewPongo2Backend returns a backend with pongo2 defaults.
func NewPongo2Backend() *Pongo2Backend {
	return &Pongo2Backend{}
}

// Name implements Backend.
func (*Pongo2Backend) Name() string { return BackendPongo2 }

// Render implements Backend. Each call compiles the body in
// a template set of its own.
func (b *Pongo2Backend) Render(
	body string,
	data map[string]any,
	helpers *Registry,
) (string, error) {
	const errCtx = "rendering with pongo2"

	set := b.newSet()

	tpl, err := set.FromString(
		"{% autoescape off %}" + body + "{% endautoescape %}",
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	pctx, err := pongo2Context(data, helpers)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := checkStrict(body, data, helpers); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	out, err := tpl.Execute(pctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return out, nil
}

func (b *Pongo2Backend) newSet() *pongo2.TemplateSet {
	set := pongo2.NewSet(pongo2SetName, noLoader{})
	set.Options.TrimBlocks = b.TrimBlocks
	set.Options.LStripBlocks = b.LStripBlocks

	// ssi reads files directly, bypassing the loader.
	_ = set.BanTag("ssi") //nolint:errcheck // fresh set, tag exists

	return set
}

func pongo2Context(
	data map[string]any,
	helpers *Registry,
) (pongo2.Context, error) {
	pctx := make(pongo2.Context, len(data)+helpers.Len())
	for key, val := range data {
		pctx[key] = val
	}

	for _, name := range helpers.Names() {
		if !identPattern.MatchString(name) {
			return nil, fmt.Errorf(
				"%w: %q is not a valid identifier", ErrInvalidHelper, name,
			)
		}

		if _, taken := pctx[name]; taken {
			return nil, fmt.Errorf(
				"%w: %q shadows a context key", ErrInvalidHelper, name,
			)
		}

		pctx[name] = pongo2Helper(name, data, helpers)
	}

	return pctx, nil
}

// pongo2Helper adapts a HelperFunc to a pongo2 callable.
func pongo2Helper(
	name string,
	data map[string]any,
	helpers *Registry,
) func(args ...*pongo2.Value) (*pongo2.Value, error) {
	return func(args ...*pongo2.Value) (*pongo2.Value, error) {
		vals := make([]any, len(args))
		for idx, arg := range args {
			if arg.IsNil() {
				continue
			}

			vals[idx] = arg.Interface()
		}

		out, err := helpers.Invoke(name, vals, data)
		if err != nil {
			return nil, err
		}

		return pongo2.AsSafeValue(out), nil
	}
}

// noLoader refuses include, extends and import.
type noLoader struct{}

func (noLoader) Abs(_, name string) string { return name }

func (noLoader) Get(path string) (io.Reader, error) {
	return nil, fmt.Errorf("%w: %s", ErrNoLoader, path)
}

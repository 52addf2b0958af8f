package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/helpers"
	"github.com/byte4ever/confgen/templating"
)

var (
	// ErrUnsupportedExtension is returned for a requirement
	// naming an extension absent from the catalog.
	ErrUnsupportedExtension = errors.New("unsupported extension")

	// ErrUnknownHelper is returned when a requirement asks
	// for a helper its extension does not provide.
	ErrUnknownHelper = errors.New("extension has no such helper")
)

// StaticHelperResolver registers helpers from a catalog.
type StaticHelperResolver struct {
	catalog *helpers.Catalog
}

// NewStaticHelperResolver returns a resolver over catalog,
// or over helpers.Default when catalog is nil.
func NewStaticHelperResolver(catalog *helpers.Catalog) *StaticHelperResolver {
	if catalog == nil {
		catalog = helpers.Default()
	}

	return &StaticHelperResolver{catalog: catalog}
}

// RegisterTemplateHelpers implements HelperResolver. Every
// helper of the extension is registered unless the
// requirement lists a subset.
func (r *StaticHelperResolver) RegisterTemplateHelpers(
	ctx context.Context,
	registry *templating.Registry,
	req extension.Requirement,
) error {
	const errCtx = "registering helpers"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !r.catalog.Has(req.Name) {
		return fmt.Errorf(
			"%s: %w: %s", errCtx, ErrUnsupportedExtension, req,
		)
	}

	names := req.Helpers
	if names == nil {
		names = r.catalog.Names(req.Name)
	}

	for _, name := range names {
		fn, ok := r.catalog.Lookup(req.Name, name)
		if !ok {
			return fmt.Errorf(
				"%s: %w: %s/%s", errCtx, ErrUnknownHelper, req.Name, name,
			)
		}

		if err := registry.Register(name, fn); err != nil {
			return fmt.Errorf("%s: %s: %w", errCtx, req.Name, err)
		}
	}

	slog.Debug(
		"registered helpers",
		"extension", req.Name,
		"version", req.Version,
		"helpers", names,
	)

	return nil
}

package importer

import (
	"context"
	"iter"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
	"github.com/byte4ever/confgen/templating"
)

// SettingsResolver fetches the settings covering a set of
// extension requirements. The returned document has the
// shape {"settings": {<extension>: ...}} and holds only the
// requested extensions the store knows about. Missing
// extensions are not an error.
type SettingsResolver interface {
	FetchSettings(
		ctx context.Context,
		reqs iter.Seq[extension.Requirement],
	) (settings.Document, error)
}

// HelperResolver registers the helpers of one extension
// requirement into a render's registry.
type HelperResolver interface {
	RegisterTemplateHelpers(
		ctx context.Context,
		registry *templating.Registry,
		req extension.Requirement,
	) error
}

// TemplateImporter gives a render its resolvers.
type TemplateImporter interface {
	SettingsResolver() SettingsResolver
	HelperResolver() HelperResolver
}

// Importer is the plain TemplateImporter: a fixed pair of
// resolvers.
type Importer struct {
	settings SettingsResolver
	helpers  HelperResolver
}

// New pairs settings and helpers.
func New(settings SettingsResolver, helpers HelperResolver) *Importer {
	return &Importer{settings: settings, helpers: helpers}
}

// SettingsResolver implements TemplateImporter. A nil
// Importer has no resolvers.
func (i *Importer) SettingsResolver() SettingsResolver {
	if i == nil {
		return nil
	}

	return i.settings
}

// HelperResolver implements TemplateImporter.
func (i *Importer) HelperResolver() HelperResolver {
	if i == nil {
		return nil
	}

	return i.helpers
}

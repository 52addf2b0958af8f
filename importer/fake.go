package importer

import (
	"context"
	"iter"

	"github.com/byte4ever/confgen/extension"
	"github.com/byte4ever/confgen/settings"
	"github.com/byte4ever/confgen/templating"
)

// FakeSettingsResolver serves settings from memory. The
// document may be given bare or in the API response shape
// {"settings": {...}}.
type FakeSettingsResolver struct {
	all settings.Document
}

// NewFakeSettingsResolver returns a resolver over doc.
func NewFakeSettingsResolver(doc settings.Document) *FakeSettingsResolver {
	return &FakeSettingsResolver{all: doc.Unwrap()}
}

// FetchSettings implements SettingsResolver.
func (r *FakeSettingsResolver) FetchSettings(
	ctx context.Context,
	reqs iter.Seq[extension.Requirement],
) (settings.Document, error) {
	if err := ctx.Err(); err != nil {
		return settings.Document{}, err
	}

	return Minimize(r.all, reqs), nil
}

// NamedHelper is a helper with the name it registers under.
type NamedHelper struct {
	Name string
	Func templating.HelperFunc
}

// FakeHelperResolver registers in-memory helpers keyed by
// extension. Requirements for extensions it does not know
// register nothing.
type FakeHelperResolver struct {
	helpers map[string][]NamedHelper
}

// NewFakeHelperResolver returns a resolver over helpers.
func NewFakeHelperResolver(
	helpers map[string][]NamedHelper,
) *FakeHelperResolver {
	cp := make(map[string][]NamedHelper, len(helpers))
	for ext, list := range helpers {
		cp[ext] = append([]NamedHelper(nil), list...)
	}

	return &FakeHelperResolver{helpers: cp}
}

// RegisterTemplateHelpers implements HelperResolver.
func (r *FakeHelperResolver) RegisterTemplateHelpers(
	ctx context.Context,
	registry *templating.Registry,
	req extension.Requirement,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, helper := range r.helpers[req.Name] {
		if err := registry.Register(helper.Name, helper.Func); err != nil {
			return err
		}
	}

	return nil
}

// NewFake pairs in-memory settings and helpers.
func NewFake(
	doc settings.Document,
	helpers map[string][]NamedHelper,
) *Importer {
	return New(NewFakeSettingsResolver(doc), NewFakeHelperResolver(helpers))
}

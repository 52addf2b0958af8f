// Package importer defines where a render gets its data
// from. A TemplateImporter pairs a SettingsResolver, which
// fetches the settings a template's extensions need, with a
// HelperResolver, which registers the helpers those
// extensions provide.
//
// Settings resolvers share one minimization rule
// (Minimize): keep the top-level settings named by the
// requirements, silently skip the ones the store does not
// have, ignore versions, and wrap the result under
// "settings".
//
// Implementations provided here:
//
//   - FakeSettingsResolver / FakeHelperResolver: in-memory,
//     for tests (NewFake pairs them).
//   - FileSettingsResolver: a settings file or a layered
//     directory of settings files.
//   - APISettingsResolver: a settings daemon reached over
//     HTTP or a unix socket.
//   - ConfigMapSettingsResolver: a key of a Kubernetes
//     ConfigMap.
//   - StaticHelperResolver: the helpers.Catalog.
package importer

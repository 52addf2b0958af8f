// Package helpers is the built-in helper catalog: for each
// extension, the named template helpers it provides.
//
// The catalog is read-only once built and safe to share
// between concurrent renders. Helpers are registered into a
// per-render templating.Registry by the importer's helper
// resolver, never globally.
package helpers

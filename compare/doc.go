// Package compare renders the same templates from two
// revisions of a template tree against a corpus of settings
// models and reports where the output differs.
//
// Templates come from a Source: a local directory, a git
// clone, or the GitHub or GitLab contents API. Models are
// settings documents loaded from a directory. Renders fan
// out over a bounded worker pool; every render owns its
// engine state, helper registry and settings document.
package compare

// Package render runs the template render pipeline.
//
// A render moves through fixed stages:
//
//	Start -> Extracted -> SettingsResolved -> HelpersRegistered -> Rendered
//
// Any stage may end in Failed instead. Extraction reads the
// template's required-extensions front matter; the
// importer's settings resolver then returns the settings
// those extensions need, its helper resolver registers
// their helpers into a registry built for this render only,
// and the backend renders the body against
// {"settings": ...}. Nothing is shared between renders, so
// a Renderer may be used from many goroutines.
//
// Failures are reported as *Error, tagged with the stage
// that failed.
package render

// Package settings holds the settings document: an immutable, JSON-like tree
// of configuration values that templates render against. Documents are
// normalized on construction (integers become int64, floats float64, maps
// map[string]any) and never expose their internal storage, so one Document
// can be read from many goroutines at once.
//
// Documents are decoded from JSON, JSONC, YAML (multi-document streams are
// merged) and CBOR, optionally zstd-compressed. LoadDir layers every file of
// a directory in filename order, later files winning.
package settings

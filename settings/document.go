package settings

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Key is the top-level key that wraps settings both in
// settings API responses and in the render context.
const Key = "settings"

// ErrUnsupportedValue reports a Go value that has no
// JSON-like representation.
var ErrUnsupportedValue = errors.New("unsupported settings value")

// Document is an immutable settings tree. The zero value
// is an empty document. Values inside a Document are
// limited to nil, bool, string, int64, float64, []any and
// map[string]any.
//
// Subtrees are shared between documents derived from one
// another (Select, Wrap, Merge); this is safe because no
// method mutates them and accessors hand out deep copies.
type Document struct {
	root map[string]any
}

// New normalizes and deep-copies m into a Document.
func New(m map[string]any) (Document, error) {
	const errCtx = "building settings document"

	root, err := normalizeMap(m, "")
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	return Document{root: root}, nil
}

// MustNew is New for literals known to be valid. It panics
// on error.
func MustNew(m map[string]any) Document {
	doc, err := New(m)
	if err != nil {
		panic(fmt.Sprintf("settings: %v", err))
	}

	return doc
}

// Empty returns a document without keys.
func Empty() Document {
	return Document{}
}

// Len returns the number of top-level keys.
func (d Document) Len() int {
	return len(d.root)
}

// Keys returns the top-level keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d.root))
	for key := range d.root {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Has reports whether key is a top-level key.
func (d Document) Has(key string) bool {
	_, ok := d.root[key]

	return ok
}

// Get returns a copy of the value stored under the
// top-level key.
func (d Document) Get(key string) (any, bool) {
	val, ok := d.root[key]
	if !ok {
		return nil, false
	}

	return cloneValue(val), true
}

// Lookup walks a dotted path ("kubernetes.node-labels.zone")
// through nested maps. Numeric segments index arrays.
func (d Document) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var cur any = d.root

	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}

			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}

			cur = node[idx]
		default:
			return nil, false
		}
	}

	return cloneValue(cur), true
}

// Map returns a deep copy of the document. The result is
// never nil.
func (d Document) Map() map[string]any {
	return cloneMap(d.rootOrEmpty())
}

// Select returns a document holding only the named
// top-level keys that are present. Absent names are
// skipped.
func (d Document) Select(names ...string) Document {
	out := make(map[string]any, len(names))

	for _, name := range names {
		if val, ok := d.root[name]; ok {
			out[name] = val
		}
	}

	return Document{root: out}
}

// Wrap nests the document under Key:
// {"settings": <document>}.
func (d Document) Wrap() Document {
	return Document{root: map[string]any{Key: d.rootOrEmpty()}}
}

// Unwrap returns the inner document when d is exactly
// {"settings": {...}}; any other document is returned
// unchanged. This accepts both the API response shape and
// bare settings files.
func (d Document) Unwrap() Document {
	if len(d.root) != 1 {
		return d
	}

	inner, ok := d.root[Key].(map[string]any)
	if !ok {
		return d
	}

	return Document{root: inner}
}

// Equal reports whether both documents hold the same tree.
func (d Document) Equal(other Document) bool {
	return reflect.DeepEqual(d.rootOrEmpty(), other.rootOrEmpty())
}

// MarshalJSON encodes the document with sorted keys.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.rootOrEmpty())
}

// UnmarshalJSON decodes a JSON object into the document.
func (d *Document) UnmarshalJSON(data []byte) error {
	const errCtx = "decoding settings json"

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	doc, err := New(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	*d = doc

	return nil
}

// String returns the JSON encoding, for logs and test
// failures.
func (d Document) String() string {
	by, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid settings: %v>", err)
	}

	return string(by)
}

func (d Document) rootOrEmpty() map[string]any {
	if d.root == nil {
		return map[string]any{}
	}

	return d.root
}

// Merge layers documents left to right. Nested maps are
// merged recursively; any other conflict is won by the
// later document.
func Merge(docs ...Document) Document {
	out := make(map[string]any)

	for _, doc := range docs {
		out = mergeMaps(out, doc.root)
	}

	return Document{root: out}
}

func mergeMaps(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for key, val := range base {
		out[key] = val
	}

	for key, val := range over {
		baseMap, baseIsMap := out[key].(map[string]any)
		overMap, overIsMap := val.(map[string]any)

		if baseIsMap && overIsMap {
			out[key] = mergeMaps(baseMap, overMap)

			continue
		}

		out[key] = val
	}

	return out
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}

	return path + "." + key
}

func normalizeMap(
	m map[string]any,
	path string,
) (map[string]any, error) {
	out := make(map[string]any, len(m))

	for key, val := range m {
		nv, err := normalize(val, joinPath(path, key))
		if err != nil {
			return nil, err
		}

		out[key] = nv
	}

	return out, nil
}

func normalizeSlice(s []any, path string) ([]any, error) {
	out := make([]any, len(s))

	for idx, val := range s {
		nv, err := normalize(val, joinPath(path, strconv.Itoa(idx)))
		if err != nil {
			return nil, err
		}

		out[idx] = nv
	}

	return out, nil
}

//nolint:cyclop // one case per scalar kind
func normalize(val any, path string) (any, error) {
	switch tv := val.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return tv, nil
	case int:
		return int64(tv), nil
	case int8:
		return int64(tv), nil
	case int16:
		return int64(tv), nil
	case int32:
		return int64(tv), nil
	case uint:
		return normalizeUint(uint64(tv)), nil
	case uint8:
		return int64(tv), nil
	case uint16:
		return int64(tv), nil
	case uint32:
		return int64(tv), nil
	case uint64:
		return normalizeUint(tv), nil
	case float32:
		return float64(tv), nil
	case json.Number:
		return normalizeNumber(tv, path)
	case []byte:
		// Same rendition encoding/json gives byte slices.
		return base64.StdEncoding.EncodeToString(tv), nil
	case map[string]any:
		return normalizeMap(tv, path)
	case []any:
		return normalizeSlice(tv, path)
	}

	return normalizeReflect(reflect.ValueOf(val), path)
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}

	return int64(u)
}

func normalizeNumber(num json.Number, path string) (any, error) {
	if i, err := num.Int64(); err == nil {
		return i, nil
	}

	f, err := num.Float64()
	if err != nil {
		return nil, fmt.Errorf(
			"%w: %q at %s", ErrUnsupportedValue, num, path,
		)
	}

	return f, nil
}

// normalizeReflect handles typed containers such as
// []string or map[any]any produced by decoders.
func normalizeReflect(rv reflect.Value, path string) (any, error) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())

		for idx := range rv.Len() {
			nv, err := normalize(
				rv.Index(idx).Interface(),
				joinPath(path, strconv.Itoa(idx)),
			)
			if err != nil {
				return nil, err
			}

			out[idx] = nv
		}

		return out, nil
	case reflect.Map:
		out := make(map[string]any, rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())

			nv, err := normalize(
				iter.Value().Interface(), joinPath(path, key),
			)
			if err != nil {
				return nil, err
			}

			out[key] = nv
		}

		return out, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return normalizeUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}

		return normalize(rv.Elem().Interface(), path)
	default:
		return nil, fmt.Errorf(
			"%w: %s at %s", ErrUnsupportedValue, rv.Type(), path,
		)
	}
}

func cloneValue(val any) any {
	switch tv := val.(type) {
	case map[string]any:
		return cloneMap(tv)
	case []any:
		out := make([]any, len(tv))
		for idx, item := range tv {
			out[idx] = cloneValue(item)
		}

		return out
	default:
		return tv
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, val := range m {
		out[key] = cloneValue(val)
	}

	return out
}
